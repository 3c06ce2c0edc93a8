package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーを起動する。
	CommandServe Command = "serve"
	// CommandWorker はセール情報のフェッチとクリーンアップを行うworkerを起動する。
	CommandWorker Command = "worker"
	// CommandMigrate は未適用のマイグレーションを適用して終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は稼働中のAPIサーバーの/healthを確認して終了する。
	// distrolessイメージにはcurlが無いため、Dockerのヘルスチェックに使う。
	CommandHealthcheck Command = "healthcheck"
	// CommandVersion はビルド情報を出力して終了する。
	CommandVersion Command = "version"
)

var commands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandWorker):      CommandWorker,
	string(CommandMigrate):     CommandMigrate,
	string(CommandHealthcheck): CommandHealthcheck,
	string(CommandVersion):     CommandVersion,
}

// ParseCommand は最初の引数からサブコマンドを決める。
// 引数が無い場合とサポート外のコマンドはCommandServeとして扱う。2つ目以降の引数は無視する。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd, ok := commands[args[0]]; ok {
		return cmd
	}
	return CommandServe
}
