// Package main provides the data maintenance CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	"github.com/arca-org/arca-bot/internal/app/backup"
	"github.com/arca-org/arca-bot/internal/app/migration"
	"github.com/arca-org/arca-bot/internal/infra/jsonstore"
)

var (
	app     = kingpin.New("arca-datacli", "Arca bot data maintenance client")
	dataDir = app.Flag("data-dir", "Data directory (or set DATA_DIR env)").Envar("DATA_DIR").Default("data").String()

	// backup commands
	backupCmd = app.Command("backup", "Manage backups")

	backupCreateCmd  = backupCmd.Command("create", "Create a backup")
	backupCreateType = backupCreateCmd.Arg("type", "Backup type (full, economy, voice)").Default(backup.TypeFull).String()
	backupCreateDesc = backupCreateCmd.Flag("description", "Backup description").Default("manual backup").String()

	backupListCmd = backupCmd.Command("list", "List backups")

	backupRestoreCmd  = backupCmd.Command("restore", "Restore a backup")
	backupRestoreName = backupRestoreCmd.Arg("name", "Backup file name").Required().String()

	backupDeleteCmd  = backupCmd.Command("delete", "Delete a backup")
	backupDeleteName = backupDeleteCmd.Arg("name", "Backup file name").Required().String()

	backupCleanupCmd  = backupCmd.Command("cleanup", "Remove old backups")
	backupCleanupKeep = backupCleanupCmd.Flag("keep", "Number of backups to keep").Default("10").Int()

	// migrate command
	migrateCmd  = app.Command("migrate", "Import a legacy economy export")
	migratePath = migrateCmd.Arg("path", "Path to legacy JSON export").Required().String()

	// analyze command
	analyzeCmd  = app.Command("analyze", "Analyze a legacy economy export without importing")
	analyzePath = analyzeCmd.Arg("path", "Path to legacy JSON export").Required().String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	js, err := jsonstore.New(*dataDir)
	if err != nil {
		fatal("Failed to open data directory: %v", err)
	}
	backups, err := backup.NewManager(js)
	if err != nil {
		fatal("Failed to open backup manager: %v", err)
	}

	switch command {
	case backupCreateCmd.FullCommand():
		createBackup(backups)
	case backupListCmd.FullCommand():
		listBackups(backups)
	case backupRestoreCmd.FullCommand():
		restoreBackup(backups)
	case backupDeleteCmd.FullCommand():
		deleteBackup(backups)
	case backupCleanupCmd.FullCommand():
		cleanupBackups(backups)
	case migrateCmd.FullCommand():
		migrate(js, backups)
	case analyzeCmd.FullCommand():
		analyze(js, backups)
	}
}

func fatal(format string, args ...any) {
	fmt.Printf("Error: "+format+"\n", args...)
	os.Exit(1)
}

func createBackup(backups *backup.Manager) {
	meta, err := backups.Create(*backupCreateType, *backupCreateDesc)
	if err != nil {
		fatal("%v", err)
	}
	fmt.Printf("Created backup %s (%s)\n", meta.Name, meta.Type)
}

func listBackups(backups *backup.Manager) {
	metas, err := backups.List()
	if err != nil {
		fatal("%v", err)
	}
	if len(metas) == 0 {
		fmt.Println("No backups found")
		return
	}

	fmt.Printf("%-45s %-8s %-20s %s\n", "NAME", "TYPE", "CREATED", "DESCRIPTION")
	for _, meta := range metas {
		fmt.Printf("%-45s %-8s %-20s %s\n",
			meta.Name, meta.Type, meta.Timestamp.Format("2006-01-02 15:04:05"), meta.Description)
	}
}

func restoreBackup(backups *backup.Manager) {
	if err := backups.Restore(*backupRestoreName); err != nil {
		fatal("%v", err)
	}
	fmt.Printf("Restored backup %s\n", *backupRestoreName)
}

func deleteBackup(backups *backup.Manager) {
	if err := backups.Delete(*backupDeleteName); err != nil {
		fatal("%v", err)
	}
	fmt.Printf("Deleted backup %s\n", *backupDeleteName)
}

func cleanupBackups(backups *backup.Manager) {
	removed, err := backups.Cleanup(*backupCleanupKeep)
	if err != nil {
		fatal("%v", err)
	}
	fmt.Printf("Removed %d backup(s), kept the newest %d\n", removed, *backupCleanupKeep)
}

func migrate(js *jsonstore.Store, backups *backup.Manager) {
	migrator := migration.NewMigrator(js, backups)
	result, err := migrator.Migrate(*migratePath)
	if err != nil {
		fatal("%v", err)
	}

	fmt.Println("\n=== MIGRATION RESULT ===")
	fmt.Printf("New users:     %d\n", result.Migrated)
	fmt.Printf("Updated users: %d\n", result.Updated)
	fmt.Printf("Kept as-is:    %d\n", result.Kept)
	fmt.Printf("Total users:   %d\n", result.Total)
}

func analyze(js *jsonstore.Store, backups *backup.Manager) {
	migrator := migration.NewMigrator(js, backups)
	analysis, err := migrator.Analyze(*analyzePath)
	if err != nil {
		fatal("%v", err)
	}

	fmt.Println("\n=== LEGACY EXPORT ANALYSIS ===")
	fmt.Printf("Users:            %d\n", analysis.Users)
	fmt.Printf("Total balance:    %d AC\n", analysis.TotalBalance)
	fmt.Printf("Total earned:     %d AC\n", analysis.TotalEarned)
	fmt.Printf("With daily claim: %d\n", analysis.WithDaily)
}
