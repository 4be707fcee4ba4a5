// Package app はSnapSolveバックエンドの起動処理をまとめる。
// 1つのバイナリでAPIサーバー、セッション掃除ワーカー、マイグレーション、
// コンテナ用ヘルスチェックを切り替える。
package app

import (
	"fmt"
	"strings"
)

// Command はsnapsolveバイナリの起動モード。
type Command string

const (
	// CommandServe は認証・解答・履歴APIを提供する。引数なしの既定値。
	CommandServe Command = "serve"
	// CommandWorker は期限切れセッションを定期削除する。
	CommandWorker Command = "worker"
	// CommandMigrate はusers/sessions/questionsのスキーマを最新化して終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は稼働中サーバーの/healthを叩く。distrolessイメージ用。
	CommandHealthcheck Command = "healthcheck"
	// CommandHelp はサブコマンドの一覧を表示する。
	CommandHelp Command = "help"
)

// commands はUsageの表示順。
var commands = []struct {
	cmd  Command
	desc string
}{
	{CommandServe, "start the SnapSolve API server (default)"},
	{CommandWorker, "run the expired-session cleanup worker"},
	{CommandMigrate, "apply database migrations and exit"},
	{CommandHealthcheck, "check GET /health on SERVER_PORT and exit"},
	{CommandHelp, "show this help"},
}

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "-h", "--help":
		return CommandHelp
	}
	for _, c := range commands {
		if string(c.cmd) == args[0] {
			return c.cmd
		}
	}
	return CommandServe
}

// Usage はsnapsolveのサブコマンド一覧を返す。
func Usage() string {
	var b strings.Builder
	b.WriteString("Usage: snapsolve [command]\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(&b, "  %-12s %s\n", c.cmd, c.desc)
	}
	return b.String()
}
