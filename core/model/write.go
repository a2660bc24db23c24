package model

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/asaidimu/go-odm/core/attributes"
	"github.com/asaidimu/go-odm/core/persistence"
	"github.com/asaidimu/go-odm/core/query"
	"github.com/asaidimu/go-odm/core/schema"
	"go.uber.org/zap"
)

// Operation names carried by lifecycle events.
const (
	OperationSave    = "save"
	OperationInsert  = "insert"
	OperationUpdate  = "update"
	OperationDelete  = "delete"
	OperationRestore = "restore"
)

func (b *Builder) writeOptions() persistence.WriteOptions {
	return persistence.WriteOptions{WriteConcern: b.def.writeConcern()}
}

func (b *Builder) fire(ctx context.Context, event persistence.PersistenceEventType, operation string, m *Model, input any, halting bool) bool {
	return b.manager.dispatcher.Fire(ctx, persistence.NewEvent(event, operation, b.def.Collection, m, input, halting))
}

// document maps the model's current attributes, generating an _id when the
// mapped document has none.
func (b *Builder) document(m *Model) (schema.Document, error) {
	doc, err := b.manager.mapper.Map(m.Attributes(), b.def.Schema)
	if err != nil {
		return nil, fmt.Errorf("failed to map %q: %w", b.def.Name, err)
	}
	if id, ok := doc[schema.IDField]; !ok || id == nil {
		if id = m.ID(); id == nil {
			id = schema.NewID()
		}
		doc[schema.IDField] = id
	}
	return doc, nil
}

// changes diffs the mapped original against the mapped current attributes.
func (b *Builder) changes(m *Model) (schema.Document, attributes.Changes, error) {
	original, err := b.manager.mapper.Map(m.Original(), b.def.Schema)
	if err != nil {
		return nil, attributes.Changes{}, fmt.Errorf("failed to map original %q: %w", b.def.Name, err)
	}
	current, err := b.manager.mapper.Map(m.Attributes(), b.def.Schema)
	if err != nil {
		return nil, attributes.Changes{}, fmt.Errorf("failed to map %q: %w", b.def.Name, err)
	}
	return current, attributes.Diff(original, current), nil
}

// updateDocument turns changes into an update. An empty diff still issues an
// idempotent update.
func updateDocument(id any, ch attributes.Changes) schema.Document {
	if ch.Empty() {
		return schema.Document{"$set": map[string]any{schema.IDField: id}}
	}
	return ch.UpdateDocument()
}

// accept copies mapped values back onto the model and marks it clean.
func accept(m *Model, doc schema.Document) {
	merged := maps.Clone(m.Attributes())
	if merged == nil {
		merged = make(schema.Document, len(doc))
	}
	for k, v := range doc {
		merged[k] = v
	}
	m.Replace(merged)
	m.SyncOriginal()
	m.persists = true
}

// Insert writes m as a new document.
func (b *Builder) Insert(ctx context.Context, m *Model) (bool, error) {
	return b.insert(ctx, m, persistence.ModelInserting, persistence.ModelInserted, OperationInsert, false)
}

// insert writes the full mapped document of m. With upsert, the document
// replaces any stored document with the same id instead of failing on it.
func (b *Builder) insert(ctx context.Context, m *Model, pre, post persistence.PersistenceEventType, operation string, upsert bool) (bool, error) {
	if !b.fire(ctx, pre, operation, m, nil, true) {
		return false, nil
	}

	doc, err := b.document(m)
	if err != nil {
		return false, err
	}

	var (
		res  persistence.WriteResult
		done bool
	)
	if upsert {
		opts := b.writeOptions()
		opts.Upsert = true
		res, err = b.store.ReplaceOne(ctx, query.IDFilter(doc[schema.IDField]), doc, opts)
		done = res.MatchedCount+res.UpsertedCount > 0
	} else {
		res, err = b.store.InsertOne(ctx, doc, b.writeOptions())
		done = res.InsertedCount > 0
	}
	if err != nil {
		return false, err
	}
	if !res.Acknowledged || !done {
		b.unacknowledged(operation, doc[schema.IDField])
		return false, nil
	}

	accept(m, doc)
	b.fire(ctx, post, operation, m, doc, false)
	return true, nil
}

// Update writes the changes of m as a $set/$unset update. A model without
// an id is inserted, still firing the updating and updated events.
func (b *Builder) Update(ctx context.Context, m *Model) (bool, error) {
	id := m.ID()
	if id == nil {
		return b.insert(ctx, m, persistence.ModelUpdating, persistence.ModelUpdated, OperationUpdate, false)
	}
	if !b.fire(ctx, persistence.ModelUpdating, OperationUpdate, m, nil, true) {
		return false, nil
	}

	current, ch, err := b.changes(m)
	if err != nil {
		return false, err
	}
	update := updateDocument(id, ch)
	res, err := b.store.UpdateOne(ctx, query.IDFilter(id), update, b.writeOptions())
	if err != nil {
		return false, err
	}
	if !res.Acknowledged || res.MatchedCount == 0 {
		b.unacknowledged(OperationUpdate, id)
		return false, nil
	}

	accept(m, current)
	b.fire(ctx, persistence.ModelUpdated, OperationUpdate, m, update, false)
	return true, nil
}

// Save updates m when it was loaded from or written to the store and
// inserts it otherwise; a model carrying an id that was never stored is
// upserted. The insert or update events fire inside saving and saved.
// Unlike the other writes, a failing saved listener turns the result into
// false.
func (b *Builder) Save(ctx context.Context, m *Model) (bool, error) {
	if !b.fire(ctx, persistence.ModelSaving, OperationSave, m, nil, true) {
		return false, nil
	}

	var (
		ok  bool
		err error
	)
	if m.Exists() && m.ID() != nil {
		ok, err = b.Update(ctx, m)
	} else {
		ok, err = b.insert(ctx, m, persistence.ModelInserting, persistence.ModelInserted, OperationInsert, m.ID() != nil)
	}
	if err != nil || !ok {
		return false, err
	}
	return b.fire(ctx, persistence.ModelSaved, OperationSave, m, nil, false), nil
}

// Delete removes m, or marks it deleted when the definition uses soft
// delete.
func (b *Builder) Delete(ctx context.Context, m *Model) (bool, error) {
	if b.def.SoftDelete {
		return b.softDelete(ctx, m)
	}
	return b.ForceDelete(ctx, m)
}

// ForceDelete removes m from the store.
func (b *Builder) ForceDelete(ctx context.Context, m *Model) (bool, error) {
	if !b.fire(ctx, persistence.ModelDeleting, OperationDelete, m, nil, true) {
		return false, nil
	}
	id := m.ID()
	if id == nil {
		return false, nil
	}

	res, err := b.store.DeleteOne(ctx, query.IDFilter(id), b.writeOptions())
	if err != nil {
		return false, err
	}
	if !res.Acknowledged || res.DeletedCount == 0 {
		b.unacknowledged(OperationDelete, id)
		return false, nil
	}

	m.persists = false
	b.fire(ctx, persistence.ModelDeleted, OperationDelete, m, nil, false)
	return true, nil
}

func (b *Builder) softDelete(ctx context.Context, m *Model) (bool, error) {
	if !b.fire(ctx, persistence.ModelDeleting, OperationDelete, m, nil, true) {
		return false, nil
	}
	id := m.ID()
	if id == nil {
		return false, nil
	}

	field := b.def.deletedAtField()
	now := time.Now().UTC()
	update := schema.Document{"$set": map[string]any{field: now}}
	res, err := b.store.UpdateOne(ctx, query.IDFilter(id), update, b.writeOptions())
	if err != nil {
		return false, err
	}
	if !res.Acknowledged || res.MatchedCount == 0 {
		b.unacknowledged(OperationDelete, id)
		return false, nil
	}

	m.Set(field, now)
	m.SyncOriginal()
	b.fire(ctx, persistence.ModelDeleted, OperationDelete, m, update, false)
	return true, nil
}

// Restore clears the soft-delete marker of m.
func (b *Builder) Restore(ctx context.Context, m *Model) (bool, error) {
	if !b.def.SoftDelete {
		return false, fmt.Errorf("%w: %s does not use soft delete", ErrInvalidDefinition, b.def.Name)
	}
	if !b.fire(ctx, persistence.ModelRestoring, OperationRestore, m, nil, true) {
		return false, nil
	}
	id := m.ID()
	if id == nil {
		return false, nil
	}

	field := b.def.deletedAtField()
	update := schema.Document{"$unset": map[string]any{field: ""}}
	res, err := b.store.UpdateOne(ctx, query.IDFilter(id), update, b.writeOptions())
	if err != nil {
		return false, err
	}
	if !res.Acknowledged || res.MatchedCount == 0 {
		b.unacknowledged(OperationRestore, id)
		return false, nil
	}

	m.Unset(field)
	m.SyncOriginal()
	b.fire(ctx, persistence.ModelRestored, OperationRestore, m, update, false)
	return true, nil
}

func (b *Builder) unacknowledged(operation string, id any) {
	b.manager.logger.Debug("Write was not acknowledged",
		zap.String("collection", b.def.Collection),
		zap.String("operation", operation),
		zap.String("id", schema.IDString(id)),
		zap.Int("writeConcern", b.def.writeConcern()))
}
