package sqlite

// Schema is applied on every open; statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS cattle (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    farm_id        INTEGER NOT NULL,
    name           TEXT    NOT NULL,
    description    TEXT    NOT NULL DEFAULT '',
    breed          TEXT    NOT NULL DEFAULT '',
    weight         REAL,
    status         TEXT    NOT NULL DEFAULT 'active',
    embedding_blob BLOB    NOT NULL,
    photo_path     TEXT    NOT NULL DEFAULT '',
    registered_at  TEXT    NOT NULL,
    UNIQUE (farm_id, name)
);
CREATE INDEX IF NOT EXISTS idx_cattle_farm ON cattle(farm_id);

CREATE TABLE IF NOT EXISTS people (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    farm_id        INTEGER NOT NULL,
    name           TEXT    NOT NULL,
    role           TEXT    NOT NULL DEFAULT 'visitor',
    description    TEXT    NOT NULL DEFAULT '',
    weight         REAL,
    embedding_blob BLOB    NOT NULL,
    photo_path     TEXT    NOT NULL DEFAULT '',
    registered_at  TEXT    NOT NULL,
    UNIQUE (farm_id, name)
);
CREATE INDEX IF NOT EXISTS idx_people_farm ON people(farm_id);

CREATE TABLE IF NOT EXISTS movements (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    farm_id     INTEGER NOT NULL,
    entity_type TEXT    NOT NULL,
    entity_id   INTEGER NOT NULL,
    entity_name TEXT    NOT NULL,
    event_type  TEXT    NOT NULL,
    source      TEXT    NOT NULL DEFAULT 'webcam',
    detected_at TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_movements_farm ON movements(farm_id, id);

CREATE TABLE IF NOT EXISTS cameras (
    id         TEXT    PRIMARY KEY,
    farm_id    INTEGER NOT NULL,
    name       TEXT    NOT NULL,
    source_url TEXT    NOT NULL,
    is_active  INTEGER NOT NULL DEFAULT 1,
    created_at TEXT    NOT NULL
);
`
