package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tiffix/order-calendar/internal/calendar"
)

// OrdersCollection is the collection name used by Mongo.
const OrdersCollection = "orders"

type geoPoint struct {
	Type        string    `bson:"type"`
	Coordinates []float64 `bson:"coordinates"` // [lng, lat]
}

type orderDoc struct {
	ObjectID primitive.ObjectID   `bson:"_id,omitempty"`
	OrderID  string               `bson:"orderId"`
	Date     string               `bson:"date"`
	Time     string               `bson:"time"`
	Customer string               `bson:"customer"`
	Items    int                  `bson:"items"`
	Type     string               `bson:"type"`
	Status   string               `bson:"status"`
	Provider string               `bson:"provider"`
	Amount   primitive.Decimal128 `bson:"amount"`
	Location *geoPoint            `bson:"location,omitempty"`
}

func toDoc(o calendar.Order) (orderDoc, error) {
	amount, err := primitive.ParseDecimal128(o.Amount.String())
	if err != nil {
		return orderDoc{}, fmt.Errorf("order %s amount: %w", o.ID, err)
	}
	doc := orderDoc{
		OrderID:  o.ID,
		Date:     o.ScheduledDate,
		Time:     o.TimeLabel,
		Customer: o.Customer,
		Items:    o.Items,
		Type:     string(o.DeliveryType),
		Status:   string(o.Status),
		Provider: string(o.ProviderType),
		Amount:   amount,
	}
	if o.Coordinates != nil {
		doc.Location = &geoPoint{Type: "Point", Coordinates: []float64{o.Coordinates.Lng, o.Coordinates.Lat}}
	}
	return doc, nil
}

func (d orderDoc) order() (calendar.Order, error) {
	amount, err := decimal.NewFromString(d.Amount.String())
	if err != nil {
		return calendar.Order{}, fmt.Errorf("order %s amount: %w", d.OrderID, err)
	}
	o := calendar.Order{
		ID:            d.OrderID,
		ScheduledDate: d.Date,
		TimeLabel:     d.Time,
		Customer:      d.Customer,
		Items:         d.Items,
		DeliveryType:  calendar.DeliveryType(d.Type),
		Status:        calendar.Status(d.Status),
		ProviderType:  calendar.ProviderType(d.Provider),
		Amount:        amount,
	}
	if d.Location != nil && len(d.Location.Coordinates) == 2 {
		o.Coordinates = &calendar.Point{Lng: d.Location.Coordinates[0], Lat: d.Location.Coordinates[1]}
	}
	return o, nil
}

// rangeFilter builds the find filter for q.
func rangeFilter(q calendar.Query) bson.M {
	filter := bson.M{}
	date := bson.M{}
	if q.From != "" {
		date["$gte"] = q.From
	}
	if q.To != "" {
		date["$lte"] = q.To
	}
	if len(date) > 0 {
		filter["date"] = date
	}
	if q.Filter != "" && q.Filter != calendar.FilterAll {
		filter["type"] = string(q.Filter)
	}
	return filter
}

// Mongo reads the order index from a MongoDB collection. Orders on the same
// date come back in insertion order.
type Mongo struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// ConnectMongo dials uri and pings before returning.
func ConnectMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	if uri == "" {
		return nil, errors.New("missing mongo uri")
	}
	if database == "" {
		database = "tiffix"
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return &Mongo{client: client, coll: client.Database(database).Collection(OrdersCollection)}, nil
}

// EnsureIndexes creates the date and order ID indexes.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	_, err := m.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "date", Value: 1}, {Key: "_id", Value: 1}}},
		{Keys: bson.D{{Key: "orderId", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	return err
}

// Range implements calendar.Source.
func (m *Mongo) Range(ctx context.Context, q calendar.Query) ([]calendar.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "_id", Value: 1}})
	if q.Offset > 0 {
		opts.SetSkip(int64(q.Offset))
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := m.coll.Find(ctx, rangeFilter(q), opts)
	if err != nil {
		return nil, fmt.Errorf("find orders: %w", err)
	}
	defer cursor.Close(ctx)

	out := make([]calendar.Order, 0)
	for cursor.Next(ctx) {
		var doc orderDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode order: %w", err)
		}
		o, err := doc.order()
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return out, nil
}

// Import inserts orders in slice order, so ObjectIDs keep their bucket order.
func (m *Mongo) Import(ctx context.Context, orders []calendar.Order) (int, error) {
	if len(orders) == 0 {
		return 0, nil
	}
	docs := make([]interface{}, 0, len(orders))
	for _, o := range orders {
		if err := o.Validate(); err != nil {
			return 0, err
		}
		doc, err := toDoc(o)
		if err != nil {
			return 0, err
		}
		doc.ObjectID = primitive.NewObjectID()
		docs = append(docs, doc)
	}
	res, err := m.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return 0, fmt.Errorf("%w: %v", ErrExists, err)
		}
		return 0, fmt.Errorf("insert orders: %w", err)
	}
	return len(res.InsertedIDs), nil
}

// Close disconnects the client.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
