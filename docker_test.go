package okane_test

import (
	"os"
	"strings"
	"testing"
)

func readFile(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("failed to read %s: %v", name, err)
	}
	return string(data)
}

// dockerInstructions は指定した命令（FROM, CMD など）の引数部分を出現順に返す。
func dockerInstructions(content, instruction string) []string {
	var out []string
	prefix := instruction + " "
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, prefix) {
			out = append(out, strings.TrimSpace(strings.TrimPrefix(trimmed, prefix)))
		}
	}
	return out
}

// composeService はdocker-compose.ymlからサービス1件分のブロックを切り出す。
func composeService(t *testing.T, content, name string) string {
	t.Helper()
	lines := strings.Split(content, "\n")
	start := -1
	for i, line := range lines {
		if line == "  "+name+":" {
			start = i
			break
		}
	}
	if start < 0 {
		t.Fatalf("docker-compose.yml should contain service %q", name)
	}

	block := []string{lines[start]}
	for _, line := range lines[start+1:] {
		// インデント2の次のキー、またはトップレベルのキーでブロックが終わる
		if strings.HasPrefix(line, "  ") && !strings.HasPrefix(line, "   ") && strings.TrimSpace(line) != "" {
			break
		}
		if line != "" && !strings.HasPrefix(line, " ") {
			break
		}
		block = append(block, line)
	}
	return strings.Join(block, "\n")
}

func TestDockerfileMultiStageBuild(t *testing.T) {
	content := readFile(t, "Dockerfile")

	froms := dockerInstructions(content, "FROM")
	if len(froms) < 2 {
		t.Fatalf("Dockerfile should be a multi-stage build, got FROM %v", froms)
	}
	if !strings.HasPrefix(froms[0], "golang:") {
		t.Errorf("builder stage should use a Go image, got: %s", froms[0])
	}

	// 実行ステージはdistrolessのnonrootイメージ
	last := froms[len(froms)-1]
	if !strings.HasPrefix(last, "gcr.io/distroless/") || !strings.HasSuffix(last, ":nonroot") {
		t.Errorf("final stage should be distroless nonroot, got: %s", last)
	}
	users := dockerInstructions(content, "USER")
	if len(users) == 0 || !strings.HasPrefix(users[len(users)-1], "nonroot") {
		t.Errorf("final stage should run as nonroot, got USER %v", users)
	}
}

func TestDockerfileBuildsOkaneCommand(t *testing.T) {
	content := readFile(t, "Dockerfile")

	var build string
	for _, run := range dockerInstructions(content, "RUN") {
		if strings.Contains(run, "go build") {
			build = run
		}
	}
	if build == "" {
		t.Fatal("Dockerfile should contain a go build step")
	}
	if !strings.HasSuffix(build, "./cmd/okane") {
		t.Errorf("go build should target ./cmd/okane, got: %s", build)
	}
	if !strings.Contains(build, "-o /out/okane") {
		t.Errorf("go build should output the okane binary, got: %s", build)
	}
	if !strings.Contains(build, "CGO_ENABLED=0") {
		t.Errorf("distroless/static needs a static binary, got: %s", build)
	}
}

func TestDockerfileEntrypointAndDefaultCommand(t *testing.T) {
	content := readFile(t, "Dockerfile")

	entrypoints := dockerInstructions(content, "ENTRYPOINT")
	if len(entrypoints) != 1 || entrypoints[0] != `["/usr/local/bin/okane"]` {
		t.Errorf("ENTRYPOINT = %v, want the okane binary", entrypoints)
	}

	cmds := dockerInstructions(content, "CMD")
	if len(cmds) == 0 || cmds[len(cmds)-1] != `["serve"]` {
		t.Errorf("default CMD = %v, want [\"serve\"]", cmds)
	}
}

func TestDockerfileHealthcheckUsesSubcommand(t *testing.T) {
	content := readFile(t, "Dockerfile")

	checks := dockerInstructions(content, "HEALTHCHECK")
	if len(checks) != 1 {
		t.Fatalf("Dockerfile should have one HEALTHCHECK, got %v", checks)
	}
	// distrolessにはcurl/wgetが無いため、バイナリ自身のhealthcheckサブコマンドを使う
	if !strings.HasSuffix(checks[0], `CMD ["/usr/local/bin/okane", "healthcheck"]`) {
		t.Errorf("HEALTHCHECK should run `okane healthcheck`, got: %s", checks[0])
	}
}

func TestDockerComposeServices(t *testing.T) {
	content := readFile(t, "docker-compose.yml")

	// db, migrate, api, worker の4コンテナ構成
	for _, name := range []string{"db", "migrate", "api", "worker"} {
		composeService(t, content, name)
	}

	if db := composeService(t, content, "db"); !strings.Contains(db, "image: postgres:") {
		t.Error("db service should use the PostgreSQL image")
	}
}

func TestDockerComposeSubcommands(t *testing.T) {
	content := readFile(t, "docker-compose.yml")

	tests := []struct {
		service string
		command string
	}{
		{"migrate", `command: ["migrate"]`},
		{"api", `command: ["serve"]`},
		{"worker", `command: ["worker"]`},
	}
	for _, tt := range tests {
		t.Run(tt.service, func(t *testing.T) {
			block := composeService(t, content, tt.service)
			if !strings.Contains(block, tt.command) {
				t.Errorf("%s service should run %s", tt.service, tt.command)
			}
			if !strings.Contains(block, "build: .") {
				t.Errorf("%s service should build the okane image", tt.service)
			}
		})
	}
}

func TestDockerComposeStartupOrder(t *testing.T) {
	content := readFile(t, "docker-compose.yml")

	if migrate := composeService(t, content, "migrate"); !strings.Contains(migrate, "condition: service_healthy") {
		t.Error("migrate should wait for a healthy db")
	}
	for _, name := range []string{"api", "worker"} {
		block := composeService(t, content, name)
		if !strings.Contains(block, "migrate:") || !strings.Contains(block, "condition: service_completed_successfully") {
			t.Errorf("%s should start after migrate completes", name)
		}
	}
}

func TestDockerComposeNetworks(t *testing.T) {
	content := readFile(t, "docker-compose.yml")

	// DBは内部ネットワークにのみ接続する
	if !strings.Contains(content, "internal: true") {
		t.Error("docker-compose.yml should define an internal network (internal: true)")
	}
	if db := composeService(t, content, "db"); strings.Contains(db, "- external") {
		t.Error("db service must not join the external network")
	}

	// 通知Webhookとお得情報の取得には外部通信が必要
	for _, name := range []string{"api", "worker"} {
		if block := composeService(t, content, name); !strings.Contains(block, "- external") {
			t.Errorf("%s service should join the external network", name)
		}
	}
}
