package anki

import (
	"archive/zip"
	"crypto/sha1"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// APKGGenerator creates Anki package files (.apkg)
type APKGGenerator struct {
	deckName string
	deckID   int64
	modelID  int64
	now      time.Time
	cards    []Card
}

// NewAPKGGenerator creates a generator for deckName. Deck and note type ids
// are derived from the name so that re-importing an updated export updates
// the deck instead of creating a second one.
func NewAPKGGenerator(deckName string) *APKGGenerator {
	id := stableID("deck:" + deckName)
	return &APKGGenerator{
		deckName: deckName,
		deckID:   id,
		modelID:  id + 1,
		now:      time.Now(),
	}
}

// AddCards adds cards to the package
func (g *APKGGenerator) AddCards(cards ...Card) {
	g.cards = append(g.cards, cards...)
}

// GenerateAPKG writes the package to outputPath
func (g *APKGGenerator) GenerateAPKG(outputPath string) error {
	tempDir, err := os.MkdirTemp("", "setu_anki_*")
	if err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	media, soundNames := g.collectMedia()

	dbPath := filepath.Join(tempDir, "collection.anki2")
	if err := g.createDatabase(dbPath, soundNames); err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}

	if err := writePackage(outputPath, dbPath, media); err != nil {
		return fmt.Errorf("failed to create package: %w", err)
	}
	return nil
}

// collectMedia numbers every distinct audio file. It returns the files in
// package order and the media name of each card's sound.
func (g *APKGGenerator) collectMedia() (media []string, soundNames []string) {
	index := make(map[string]bool)
	soundNames = make([]string, len(g.cards))
	for i, card := range g.cards {
		if card.AudioFile == "" {
			continue
		}
		name := filepath.Base(card.AudioFile)
		soundNames[i] = name
		if !index[card.AudioFile] {
			index[card.AudioFile] = true
			media = append(media, card.AudioFile)
		}
	}
	return media, soundNames
}

func (g *APKGGenerator) createDatabase(dbPath string, soundNames []string) error {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range schema {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	if err := g.insertCollection(tx); err != nil {
		return fmt.Errorf("failed to insert collection: %w", err)
	}
	if err := g.insertNotes(tx, soundNames); err != nil {
		return err
	}
	return tx.Commit()
}

// schema is the Anki 2.1 legacy collection layout (schema version 11).
var schema = []string{
	`CREATE TABLE col (id integer PRIMARY KEY, crt integer NOT NULL, mod integer NOT NULL,
		scm integer NOT NULL, ver integer NOT NULL, dty integer NOT NULL, usn integer NOT NULL,
		ls integer NOT NULL, conf text NOT NULL, models text NOT NULL, decks text NOT NULL,
		dconf text NOT NULL, tags text NOT NULL)`,
	`CREATE TABLE notes (id integer PRIMARY KEY, guid text NOT NULL, mid integer NOT NULL,
		mod integer NOT NULL, usn integer NOT NULL, tags text NOT NULL, flds text NOT NULL,
		sfld text NOT NULL, csum integer NOT NULL, flags integer NOT NULL, data text NOT NULL)`,
	`CREATE TABLE cards (id integer PRIMARY KEY, nid integer NOT NULL, did integer NOT NULL,
		ord integer NOT NULL, mod integer NOT NULL, usn integer NOT NULL, type integer NOT NULL,
		queue integer NOT NULL, due integer NOT NULL, ivl integer NOT NULL, factor integer NOT NULL,
		reps integer NOT NULL, lapses integer NOT NULL, left integer NOT NULL, odue integer NOT NULL,
		odid integer NOT NULL, flags integer NOT NULL, data text NOT NULL)`,
	`CREATE TABLE revlog (id integer PRIMARY KEY, cid integer NOT NULL, usn integer NOT NULL,
		ease integer NOT NULL, ivl integer NOT NULL, lastIvl integer NOT NULL, factor integer NOT NULL,
		time integer NOT NULL, type integer NOT NULL)`,
	`CREATE TABLE graves (usn integer NOT NULL, oid integer NOT NULL, type integer NOT NULL)`,
	`CREATE INDEX ix_notes_usn ON notes (usn)`,
	`CREATE INDEX ix_notes_csum ON notes (csum)`,
	`CREATE INDEX ix_cards_usn ON cards (usn)`,
	`CREATE INDEX ix_cards_nid ON cards (nid)`,
	`CREATE INDEX ix_cards_sched ON cards (did, queue, due)`,
	`CREATE INDEX ix_revlog_usn ON revlog (usn)`,
	`CREATE INDEX ix_revlog_cid ON revlog (cid)`,
}

func (g *APKGGenerator) insertCollection(tx *sql.Tx) error {
	now := g.now.Unix()
	deck := func(id int64, name, desc string) map[string]interface{} {
		return map[string]interface{}{
			"id": id, "name": name, "desc": desc, "mod": now, "usn": 0,
			"collapsed": false, "browserCollapsed": false, "dyn": 0, "conf": 1,
			"newToday": []int{0, 0}, "revToday": []int{0, 0},
			"lrnToday": []int{0, 0}, "timeToday": []int{0, 0},
			"extendNew": 10, "extendRev": 50,
		}
	}
	decks := map[string]interface{}{
		"1": deck(1, "Default", ""),
		strconv.FormatInt(g.deckID, 10): deck(g.deckID, g.deckName, "Phrases compiled by setu"),
	}
	models := map[string]interface{}{
		strconv.FormatInt(g.modelID, 10): g.noteType(),
	}
	conf := map[string]interface{}{
		"nextPos": 1, "estTimes": true, "activeDecks": []int64{1}, "sortType": "noteFld",
		"sortBackwards": false, "addToCur": true, "curDeck": 1, "newSpread": 0,
		"dueCounts": true, "collapseTime": 1200, "timeLim": 0, "schedVer": 1,
		"curModel": strconv.FormatInt(g.modelID, 10), "dayLearnFirst": false,
	}
	dconf := map[string]interface{}{
		"1": map[string]interface{}{
			"id": 1, "name": "Default", "dyn": 0, "usn": 0, "mod": now,
			"timer": 0, "maxTaken": 60, "autoplay": true, "replayq": true,
			"new": map[string]interface{}{
				"delays": []int{1, 10}, "ints": []int{1, 4, 7}, "initialFactor": 2500,
				"perDay": 20, "order": 1, "bury": true, "separate": true,
			},
			"lapse": map[string]interface{}{
				"delays": []int{10}, "mult": 0, "minInt": 1, "leechFails": 8, "leechAction": 0,
			},
			"rev": map[string]interface{}{
				"perDay": 100, "ease4": 1.3, "fuzz": 0.05, "maxIvl": 36500,
				"ivlFct": 1, "bury": true, "minSpace": 1,
			},
		},
	}

	encoded := make([]string, 0, 4)
	for _, v := range []interface{}{conf, models, decks, dconf} {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		encoded = append(encoded, string(b))
	}

	_, err := tx.Exec(`INSERT INTO col VALUES (1, ?, ?, ?, 11, 0, 0, 0, ?, ?, ?, ?, '{}')`,
		now, now*1000, now*1000, encoded[0], encoded[1], encoded[2], encoded[3])
	return err
}

var noteFields = []string{"Meaning", "Target", "Pronunciation", "Audio", "Topic"}

func (g *APKGGenerator) noteType() map[string]interface{} {
	flds := make([]map[string]interface{}, len(noteFields))
	for i, name := range noteFields {
		flds[i] = map[string]interface{}{
			"name": name, "ord": i, "sticky": false, "rtl": false,
			"font": "Arial", "size": 20, "media": []string{},
		}
	}
	template := func(ord int, name, front, back string) map[string]interface{} {
		return map[string]interface{}{
			"name": name, "ord": ord, "qfmt": front, "afmt": back,
			"did": nil, "bqfmt": "", "bafmt": "",
		}
	}

	return map[string]interface{}{
		"id": g.modelID, "name": "Setu phrase (meaning and target)", "type": 0,
		"mod": g.now.Unix(), "usn": -1, "sortf": 1, "did": g.deckID,
		"req":  [][]interface{}{{0, "all", []int{0}}, {1, "all", []int{1}}},
		"vers": []int{}, "tags": []string{},
		"latexPre":  "\\documentclass[12pt]{article}\n\\special{papersize=3in,5in}\n\\usepackage[utf8]{inputenc}\n\\usepackage{amssymb,amsmath}\n\\pagestyle{empty}\n\\setlength{\\parindent}{0in}\n\\begin{document}",
		"latexPost": "\\end{document}",
		"flds":      flds,
		"tmpls": []map[string]interface{}{
			template(0, "Meaning to target", meaningFront, meaningBack),
			template(1, "Target to meaning", targetFront, targetBack),
		},
		"css": cardCSS,
	}
}

const (
	meaningFront = `<div class="meaning">{{Meaning}}</div>
<div class="topic">{{Topic}}</div>`
	meaningBack = `{{FrontSide}}
<hr id="answer">
<div class="target">{{Target}}</div>
<div class="pronunciation">{{Pronunciation}}</div>
{{Audio}}`
	targetFront = `<div class="target">{{Target}}</div>
{{Audio}}`
	targetBack = `{{FrontSide}}
<hr id="answer">
<div class="pronunciation">{{Pronunciation}}</div>
<div class="meaning">{{Meaning}}</div>`
	cardCSS = `.card { font-family: sans-serif; font-size: 22px; text-align: center; color: #222; background: #fff; }
.meaning { font-size: 26px; font-weight: bold; margin: 16px 0; }
.target { font-size: 34px; color: #8e2b12; margin: 16px 0; }
.pronunciation { font-size: 24px; color: #1f4e79; margin: 8px 0; }
.topic { font-size: 14px; color: #888; }
hr#answer { margin: 24px 0; border: 0; border-top: 1px solid #ddd; }`
)

func (g *APKGGenerator) insertNotes(tx *sql.Tx, soundNames []string) error {
	mod := g.now.Unix()
	base := g.now.UnixMilli()

	for i, card := range g.cards {
		noteID := base + int64(i*3)

		sound := ""
		if soundNames[i] != "" {
			sound = fmt.Sprintf("[sound:%s]", soundNames[i])
		}
		fields := strings.Join([]string{card.Meaning, card.Target, card.Pronunciation, sound, card.Topic}, "\x1f")
		guid := strconv.FormatInt(stableID(fmt.Sprintf("note:%d:%s:%s", card.Level, card.Meaning, card.Target)), 36)

		_, err := tx.Exec(`INSERT INTO notes VALUES (?, ?, ?, ?, -1, ?, ?, ?, ?, 0, '')`,
			noteID, guid, g.modelID, mod, " "+card.tag()+" ", fields, card.Target, checksum(card.Target))
		if err != nil {
			return fmt.Errorf("failed to insert note: %w", err)
		}

		for ord := 0; ord < 2; ord++ {
			_, err = tx.Exec(`INSERT INTO cards VALUES (?, ?, ?, ?, ?, -1, 0, 0, ?, 0, 0, 0, 0, 0, 0, 0, 0, '')`,
				noteID+1+int64(ord), noteID, g.deckID, ord, mod, i+1)
			if err != nil {
				return fmt.Errorf("failed to insert card: %w", err)
			}
		}
	}
	return nil
}

// writePackage zips the collection and the numbered media files together
// with the media index.
func writePackage(outputPath, dbPath string, media []string) (err error) {
	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	out, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	archive := zip.NewWriter(out)
	if err := addFile(archive, "collection.anki2", dbPath); err != nil {
		return err
	}

	mapping := make(map[string]string, len(media))
	for i, path := range media {
		name := strconv.Itoa(i)
		if err := addFile(archive, name, path); err != nil {
			return fmt.Errorf("failed to add audio file %s: %w", path, err)
		}
		mapping[name] = filepath.Base(path)
	}

	w, err := archive.Create("media")
	if err != nil {
		return err
	}
	if err := json.NewEncoder(w).Encode(mapping); err != nil {
		return err
	}
	return archive.Close()
}

func addFile(archive *zip.Writer, name, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	w, err := archive.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}

// checksum is Anki's duplicate check value: the first 32 bits of the SHA1
// of the sort field.
func checksum(field string) int64 {
	sum := sha1.Sum([]byte(field))
	return int64(binary.BigEndian.Uint32(sum[:4]))
}

func stableID(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	// Anki ids are positive and fit in a JavaScript number.
	return int64(h.Sum64() & (1<<52 - 1))
}
