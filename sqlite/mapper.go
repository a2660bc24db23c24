package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/asaidimu/go-odm/core/persistence"
	"github.com/asaidimu/go-odm/core/schema"
	"github.com/asaidimu/go-odm/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultInteractorOptions returns the options used when none are given:
// tables are created with IF NOT EXISTS and never dropped.
func DefaultInteractorOptions() *persistence.InteractorOptions {
	return &persistence.InteractorOptions{
		IfNotExists: true,
	}
}

// quoteIdentifier quotes a table or column name.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d *Database) tableName(collection string) string {
	return d.options.TablePrefix + collection
}

// createTableSQL returns the DDL of a collection table. Every collection has
// the same shape: the insertion sequence, the encoded _id and the BSON
// document.
func createTableSQL(table string, ifNotExists bool) string {
	var sb strings.Builder
	sb.WriteString("CREATE TABLE ")
	if ifNotExists {
		sb.WriteString("IF NOT EXISTS ")
	}
	sb.WriteString(quoteIdentifier(table))
	sb.WriteString(" (\n")
	sb.WriteString("    \"seq\" INTEGER PRIMARY KEY AUTOINCREMENT,\n")
	sb.WriteString("    \"id\" TEXT NOT NULL UNIQUE,\n")
	sb.WriteString("    \"document\" BLOB NOT NULL\n")
	sb.WriteString(");")
	return sb.String()
}

// createCollection creates the table of a collection, dropping it first when
// DropIfExists is set.
func (d *Database) createCollection(collection string) error {
	table := d.tableName(collection)
	if d.options.DropIfExists {
		if err := d.dropCollection(collection); err != nil {
			return err
		}
	}
	stmt := createTableSQL(table, d.options.IfNotExists)
	if _, err := d.db.Exec(stmt); err != nil {
		return fmt.Errorf("failed to execute SQL statement '%s': %w", stmt, err)
	}
	return nil
}

// dropCollection drops the table of a collection.
func (d *Database) dropCollection(collection string) error {
	table := quoteIdentifier(d.tableName(collection))
	if _, err := d.db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s;", table)); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", table, err)
	}
	return nil
}

// CollectionExists checks whether the table of a collection exists.
func (d *Database) CollectionExists(collection string) (bool, error) {
	var name string
	err := d.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name = ?;", d.tableName(collection)).Scan(&name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// idKey encodes an _id into the text stored in the id column. The prefix
// keeps ObjectIDs, strings and numbers from colliding; integral numbers share
// one form whatever their Go type.
func idKey(id any) (string, error) {
	switch v := schema.CanonicalID(id).(type) {
	case primitive.ObjectID:
		return "o:" + v.Hex(), nil
	case string:
		return "s:" + v, nil
	case bool:
		return "b:" + strconv.FormatBool(v), nil
	case nil:
		return "", errors.New("document has no _id")
	default:
		f, ok := schema.ToFloat64(v)
		if !ok {
			return "", fmt.Errorf("unsupported _id type %T", v)
		}
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return "n:" + strconv.FormatInt(int64(f), 10), nil
		}
		return "n:" + strconv.FormatFloat(f, 'g', -1, 64), nil
	}
}

// encodeDocument serializes a document for the document column.
func encodeDocument(doc schema.Document) ([]byte, error) {
	b, err := bson.Marshal(bson.M(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return b, nil
}

// decodeDocument is the inverse of encodeDocument. BSON containers become
// plain maps and slices, 32-bit integers are widened and dates become
// time.Time.
func decodeDocument(b []byte) (schema.Document, error) {
	var raw bson.M
	if err := bson.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	doc, _ := utils.FromBSON(raw).(map[string]any)
	return schema.Document(doc), nil
}
