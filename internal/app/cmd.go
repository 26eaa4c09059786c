package app

import "fmt"

// Command はアプリケーションの起動モード。
type Command string

const (
	CommandServe   Command = "serve"
	CommandWorker  Command = "worker"
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はdistrolessイメージのDocker HEALTHCHECKから呼ばれる。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はos.Args[1:]の先頭からサブコマンドを解析する。
// 引数がない場合はserveとして扱い、未知のサブコマンドはエラーにする。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 {
		return CommandServe, nil
	}
	switch c := Command(args[0]); c {
	case CommandServe, CommandWorker, CommandMigrate, CommandHealthcheck:
		return c, nil
	default:
		return "", fmt.Errorf("unknown command %q (serve, worker, migrate, healthcheck)", args[0])
	}
}

// MigrateAction はmigrateサブコマンドの動作。
type MigrateAction string

const (
	MigrateUp MigrateAction = "up"
	// MigrateDown は直近のマイグレーションを1つだけ戻す。
	MigrateDown    MigrateAction = "down"
	MigrateVersion MigrateAction = "version"
)

// ParseMigrateAction は "migrate" に続く引数を解析する。省略時はup。
func ParseMigrateAction(args []string) (MigrateAction, error) {
	if len(args) < 2 {
		return MigrateUp, nil
	}
	switch a := MigrateAction(args[1]); a {
	case MigrateUp, MigrateDown, MigrateVersion:
		return a, nil
	default:
		return "", fmt.Errorf("unknown migrate action %q (up, down, version)", args[1])
	}
}
