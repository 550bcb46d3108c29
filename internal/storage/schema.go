package storage

const schemaSQL = `
-- One row per audited path; entry_json holds the full report entry and the
-- flat columns mirror it for ad-hoc SQL queries
CREATE TABLE IF NOT EXISTS pages (
    path TEXT PRIMARY KEY NOT NULL,
    position INTEGER NOT NULL,

    old_status INTEGER NOT NULL DEFAULT 0,
    new_status INTEGER NOT NULL DEFAULT 0,
    old_title TEXT,
    new_title TEXT,
    final_path TEXT,

    title_match INTEGER NOT NULL DEFAULT 0,
    h1_match INTEGER NOT NULL DEFAULT 0,
    desc_match INTEGER NOT NULL DEFAULT 0,
    redirect_to_different_path INTEGER NOT NULL DEFAULT 0,
    consolidated_redirect INTEGER NOT NULL DEFAULT 0,
    links_missing_count INTEGER NOT NULL DEFAULT 0,
    links_extra_count INTEGER NOT NULL DEFAULT 0,

    entry_json TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pages_position ON pages(position);
CREATE INDEX IF NOT EXISTS idx_pages_final_path ON pages(final_path);

-- Pages whose content or URL changed between the deployments
CREATE VIEW IF NOT EXISTS changed_pages AS
SELECT
    path, old_status, new_status, old_title, new_title, final_path,
    title_match, h1_match, desc_match, redirect_to_different_path,
    consolidated_redirect
FROM pages
WHERE title_match = 0 OR h1_match = 0 OR desc_match = 0
   OR redirect_to_different_path = 1 OR new_status >= 400 OR new_status = 0;

-- Redirect targets ordered as in the report metadata
CREATE TABLE IF NOT EXISTS redirect_buckets (
    rank INTEGER PRIMARY KEY NOT NULL,
    path TEXT NOT NULL,
    count INTEGER NOT NULL
);

-- Report metadata as key-value pairs
CREATE TABLE IF NOT EXISTS crawl_meta (
    key TEXT PRIMARY KEY NOT NULL,
    value TEXT NOT NULL
);
`
