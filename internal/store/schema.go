package store

// currentSchemaVersion is stored in PRAGMA user_version.
//
//	0 - legacy launcher table: INTEGER PRIMARY KEY without AUTOINCREMENT,
//	    non-unique componentname index, optional title/icon columns
//	1 - AUTOINCREMENT ids, NOT NULL identity with a UNIQUE index,
//	    launchcount NOT NULL DEFAULT 0
const currentSchemaVersion = 1

const (
	tableAppInfos   = "appinfos"
	identityIndex   = "idx_appinfos_componentname"
	colID           = "_id"
	colIdentity     = "componentname"
	colTitle        = "title"
	colIcon         = "icon"
	colLaunchCount  = "launchcount"
	recordSelectSQL = "SELECT _id, componentname, title, icon, launchcount FROM appinfos"
)

const schema = `
CREATE TABLE IF NOT EXISTS appinfos (
    _id INTEGER PRIMARY KEY AUTOINCREMENT,
    componentname TEXT NOT NULL,
    title TEXT,
    icon BLOB,
    launchcount INTEGER NOT NULL DEFAULT 0
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_appinfos_componentname ON appinfos(componentname);
`
