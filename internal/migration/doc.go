// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package migration manages the metrics store's SQLite schema with
versioned, embedded SQL files applied through golang-migrate.

# Overview

Migration files are embedded via embed.FS and applied through the
golang-migrate engine, giving forward migration, rollback, step-by-step
application, jumping to an exact version, and forcing the bookkeeping
version after manually resolving a dirty state.

# Core types

  - Migrator: the migrator interface — Up/Down/DownAll/Steps/Goto/Force/
    Version/Status/Info/Close.
  - DefaultMigrator: the golang-migrate-backed implementation.
  - Config: database URL and migrations table name.
  - MigrationStatus / MigrationInfo: migration state and summary.
  - CLI: a terminal-facing wrapper around Migrator with formatted output.

# Capabilities

  - Factory functions: NewMigratorFromPath (from a search_metrics.db file
    path) and NewMigratorFromURL (an explicit DSN).
  - CLI integration: RunUp/RunDown/RunStatus/RunInfo and friends for the
    searchd migrate subcommand.
*/
package migration
