package app

import (
	"flag"
	"fmt"
	"io"
	"os"
)

// configEnv は設定ファイルのパスを指定する環境変数。
const configEnv = "BENTO_CONFIG"

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はBFFサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// Invocation はコマンドライン引数の解析結果。
type Invocation struct {
	Command    Command
	ConfigPath string
}

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "serve":
		return CommandServe
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}

// ParseArgs はサブコマンドとフラグを解析する。
// 設定ファイルは -config フラグ、BENTO_CONFIG 環境変数の順に探す。
// どちらも無い場合は環境変数だけで設定を組み立てる。
func ParseArgs(args []string) (Invocation, error) {
	inv := Invocation{Command: ParseCommand(args)}

	rest := args
	if len(rest) > 0 && (rest[0] == string(CommandServe) || rest[0] == string(CommandHealthcheck)) {
		rest = rest[1:]
	}

	fs := flag.NewFlagSet(string(inv.Command), flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&inv.ConfigPath, "config", os.Getenv(configEnv), "path to the YAML config file")
	if err := fs.Parse(rest); err != nil {
		return inv, fmt.Errorf("invalid arguments: %w", err)
	}
	return inv, nil
}
