// Package archive keeps a relational history of a chat platform's guilds in sync with the
// platform itself.
//
// It provides:
//   - Changed / Nickname / Activity: change detection used before appending a history row,
//     shared by the live path and the reconciliation path so both persist the same rows.
//   - Archiver.Backfill: per-channel gap filling bounded below by the last archived message
//     (the watermark), written oldest first, one message at a time.
//   - Archiver.ReconcileGuild / ReconcileAll: guild → members → channels walk run at startup,
//     on guild join/update and periodically (StartResyncJob).
//   - Ingestor: dispatch table mapping live platform events to the operations above, each
//     event handled in its own goroutine.
//
// Persistence and the platform are reached through the Store and Source interfaces; the db
// and discordapi packages provide the production implementations.
package archive
