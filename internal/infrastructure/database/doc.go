// Package database provides the SQLite connection used by the agent's local
// state (currently the device credentials store).
//
// This package manages:
//   - Opening the database with WAL mode and a busy timeout
//   - Applying versioned SQL migrations from an fs.FS
//   - Health checks and lifecycle
//
// Security Considerations:
//   - All queries use parameterised statements
//   - The database file is restricted to 0600 because it holds credentials
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
