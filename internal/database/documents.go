package database

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thereayou/ligabpi/internal/docstore"
	"github.com/thereayou/ligabpi/internal/models"
)

var metaColumns = map[string]string{
	docstore.FieldID:        "id",
	docstore.FieldCreatedAt: "created_at",
	docstore.FieldUpdatedAt: "updated_at",
}

// List отдаёт документы коллекции. Равенства по полям тела и сортировка по
// метаданным выполняются в SQL, остальное досчитывается через docstore.Apply.
func (d *Database) List(ctx context.Context, collection string, q docstore.Query) ([]docstore.Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	tx := d.db.WithContext(ctx).Model(&models.Document{}).Where("collection = ?", collection)
	if q.Viewer == "" {
		tx = tx.Where("private = ?", false)
	} else {
		tx = tx.Where("(private = ? OR owner_id = ?)", false, q.Viewer)
	}

	pushed := true
	for _, f := range q.Filters {
		expr, ok := pushdown(f)
		if !ok {
			pushed = false
			continue
		}
		tx = tx.Where(expr)
	}

	if pushed && metaOnly(q.OrderBy) {
		for _, o := range q.OrderBy {
			tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: metaColumns[o.Field]}, Desc: o.Desc})
		}
		if q.Limit > 0 {
			tx = tx.Limit(q.Limit)
		}
	} else {
		tx = tx.Order("created_at")
	}

	var rows []models.Document
	if err := tx.Find(&rows).Error; err != nil {
		return nil, err
	}

	docs := make([]docstore.Document, len(rows))
	for i := range rows {
		docs[i] = toDocument(rows[i])
	}
	return docstore.Apply(docs, q), nil
}

func (d *Database) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	var row models.Document
	err := d.db.WithContext(ctx).First(&row, "collection = ? AND id = ?", collection, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return docstore.Document{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Document{}, err
	}
	return toDocument(row), nil
}

func (d *Database) Create(ctx context.Context, collection string, nd docstore.NewDocument) (docstore.Document, error) {
	return d.insert(ctx, collection, "", nd)
}

// CreateUnique опирается на уникальный индекс (collection, unique_key):
// из двух одновременных вставок проходит одна.
func (d *Database) CreateUnique(ctx context.Context, collection, key string, nd docstore.NewDocument) (docstore.Document, error) {
	if key == "" {
		return docstore.Document{}, docstore.ErrInvalidDocument
	}
	return d.insert(ctx, collection, key, nd)
}

func (d *Database) insert(ctx context.Context, collection, key string, nd docstore.NewDocument) (docstore.Document, error) {
	if err := docstore.CheckObject(nd.Data); err != nil {
		return docstore.Document{}, err
	}

	id := nd.ID
	if id == "" {
		id = uuid.NewString()
	}
	ts := d.tick()
	row := models.Document{
		Collection: collection,
		ID:         id,
		OwnerID:    nd.OwnerID,
		Private:    nd.Private,
		Data:       datatypes.JSON(nd.Data),
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}
	if key != "" {
		row.UniqueKey = &key
	}

	if err := d.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || d.taken(ctx, collection, id, key) {
			return docstore.Document{}, docstore.ErrConflict
		}
		return docstore.Document{}, err
	}

	doc := toDocument(row)
	d.publish(ctx, docstore.EventCreated, doc)
	return doc, nil
}

// taken проверяет, занят ли id или ключ, когда драйвер не перевёл ошибку
// нарушения уникальности.
func (d *Database) taken(ctx context.Context, collection, id, key string) bool {
	tx := d.db.WithContext(ctx).Model(&models.Document{}).Where("collection = ?", collection)
	if key != "" {
		tx = tx.Where("(id = ? OR unique_key = ?)", id, key)
	} else {
		tx = tx.Where("id = ?", id)
	}
	var n int64
	return tx.Count(&n).Error == nil && n > 0
}

func (d *Database) Update(ctx context.Context, collection, id string, patch json.RawMessage) (docstore.Document, error) {
	var row models.Document
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&row, "collection = ? AND id = ?", collection, id).Error; err != nil {
			return err
		}
		merged, err := docstore.MergePatch(json.RawMessage(row.Data), patch)
		if err != nil {
			return err
		}
		row.Data = datatypes.JSON(merged)
		row.UpdatedAt = d.tick()
		return tx.Model(&row).Updates(map[string]any{
			"data":       row.Data,
			"updated_at": row.UpdatedAt,
		}).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return docstore.Document{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Document{}, err
	}

	doc := toDocument(row)
	d.publish(ctx, docstore.EventUpdated, doc)
	return doc, nil
}

func (d *Database) Subscribe(ctx context.Context, topic string) (docstore.Subscription, error) {
	return d.events.Subscribe(ctx, topic)
}

func (d *Database) publish(ctx context.Context, kind docstore.EventKind, doc docstore.Document) {
	// Запись уже сохранена, потерянное событие клиенты догонят перезагрузкой.
	_ = d.events.Publish(ctx, docstore.Event{Kind: kind, Topic: docstore.Topic(doc.Collection), Document: doc})
}

func toDocument(row models.Document) docstore.Document {
	doc := docstore.Document{
		ID:         row.ID,
		Collection: row.Collection,
		CreatedAt:  row.CreatedAt.UTC(),
		UpdatedAt:  row.UpdatedAt.UTC(),
		OwnerID:    row.OwnerID,
		Private:    row.Private,
		Data:       json.RawMessage(row.Data),
	}
	if row.UniqueKey != nil {
		doc.UniqueKey = *row.UniqueKey
	}
	return doc
}

// pushdown переводит фильтр в SQL, если база посчитает его так же, как docstore.Matches.
func pushdown(f docstore.Filter) (clause.Expression, bool) {
	if f.Op != docstore.OpEqual {
		return nil, false
	}
	if col, ok := metaColumns[f.Field]; ok {
		if f.Field != docstore.FieldID {
			return nil, false
		}
		return clause.Eq{Column: clause.Column{Name: col}, Value: f.Value}, true
	}
	if strings.HasPrefix(f.Field, "$") {
		return nil, false
	}
	switch v := f.Value.(type) {
	case bool:
	case string:
		// Даты сравниваются как время, а не как текст.
		if _, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return nil, false
		}
	default:
		return nil, false
	}
	return datatypes.JSONQuery("data").Equals(f.Value, strings.Split(f.Field, ".")...), true
}

func metaOnly(orders []docstore.Order) bool {
	for _, o := range orders {
		if _, ok := metaColumns[o.Field]; !ok {
			return false
		}
	}
	return true
}
