package database

import "embed"

// Migration workflow:
//  1. Add a numbered pair of .up.sql / .down.sql files under migrations/.
//  2. Files are embedded into the binary at compile time.
//  3. The client applies pending migrations on startup (runMigrations).
//
//go:embed migrations
var migrationsFS embed.FS
