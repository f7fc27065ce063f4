package sqlite

import "github.com/steveyegge/newsdedup/internal/storage/migrations"

// Times are stored as unix milliseconds (UTC) so range filters stay numeric.
var schemaMigrations = []migrations.Migration{
	{
		Version:     1,
		Description: "create articles",
		Up: `
CREATE TABLE IF NOT EXISTS articles (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    external_id TEXT NOT NULL UNIQUE,
    title TEXT NOT NULL,
    summary TEXT NOT NULL DEFAULT '',
    url TEXT NOT NULL,
    source TEXT NOT NULL DEFAULT '',
    content_hash TEXT NOT NULL,
    published_date INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_articles_url ON articles(url);
CREATE INDEX IF NOT EXISTS idx_articles_content_hash ON articles(content_hash);
CREATE INDEX IF NOT EXISTS idx_articles_published_date ON articles(published_date);
`,
		Down: `DROP TABLE IF EXISTS articles;`,
	},
	{
		Version:     2,
		Description: "track content updates and duplicate checks",
		Up: `
ALTER TABLE articles ADD COLUMN last_content_update INTEGER;
ALTER TABLE articles ADD COLUMN duplicate_check_count INTEGER NOT NULL DEFAULT 0;
`,
		Down: `
ALTER TABLE articles DROP COLUMN duplicate_check_count;
ALTER TABLE articles DROP COLUMN last_content_update;
`,
	},
}
