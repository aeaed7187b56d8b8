package seed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/gosuri/uiprogress"

	"github.com/sheetbase/sheetbase/pkg/types"
)

var (
	dateFrom = time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	dateTo   = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
)

// generator produces the rows of one table. Pools are only read while
// generators run.
type generator struct {
	table    types.Table
	faker    *gofakeit.Faker
	pools    map[string]map[string][]any
	nullRate float64
	offset   int
	bar      *uiprogress.Bar

	// primaryKeys maps registered table names to their key column
	primaryKeys map[string]string
}

func (g *generator) rows(ctx context.Context, n int) ([]types.Record, error) {
	pk, hasPK := g.table.PrimaryKey()
	out := make([]types.Record, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec := make(types.Record, len(g.table.Columns))
		if hasPK {
			rec[pk.Name] = g.key(pk, i)
		}
		for _, c := range g.table.Columns {
			if c.PrimaryKey {
				continue
			}
			v, err := g.value(c, out, rec)
			if err != nil {
				return nil, err
			}
			rec[c.Name] = v
		}
		out = append(out, rec)
		if g.bar != nil {
			g.bar.Incr()
		}
	}
	return out, nil
}

func (g *generator) key(c types.Column, i int) any {
	if c.ValueType() == types.TypeNumber {
		return float64(g.offset + i + 1)
	}
	if c.DefaultFunc != nil {
		return c.DefaultFunc()
	}
	return types.NewID()
}

func (g *generator) value(c types.Column, done []types.Record, current types.Record) (any, error) {
	if c.References != nil {
		return g.reference(c, done, current)
	}
	if c.Optional && g.nullRate > 0 && g.faker.Float64() < g.nullRate {
		return nil, nil
	}

	name := strings.ToLower(c.Name)
	switch c.ValueType() {
	case types.TypeNumber:
		switch {
		case containsAny(name, "price", "amount", "total", "cost"):
			return g.faker.Price(1, 500), nil
		case containsAny(name, "qty", "quantity", "count"):
			return float64(g.faker.Number(1, 20)), nil
		case containsAny(name, "age"):
			return float64(g.faker.Number(18, 90)), nil
		case containsAny(name, "year"):
			return float64(g.faker.Number(2000, 2025)), nil
		}
		return float64(g.faker.Number(0, 1000)), nil
	case types.TypeBoolean:
		return g.faker.Bool(), nil
	case types.TypeDate:
		return g.faker.DateRange(dateFrom, dateTo).UTC().Format(time.RFC3339), nil
	}
	return g.text(name), nil
}

func (g *generator) text(name string) string {
	f := g.faker
	switch {
	case containsAny(name, "email"):
		return f.Email()
	case containsAny(name, "phone", "mobile"):
		return f.Phone()
	case containsAny(name, "first"):
		return f.FirstName()
	case containsAny(name, "last", "surname"):
		return f.LastName()
	case containsAny(name, "company"):
		return f.Company()
	case containsAny(name, "customer", "name", "user", "author"):
		return f.Name()
	case containsAny(name, "address", "street"):
		return f.Street()
	case containsAny(name, "city"):
		return f.City()
	case containsAny(name, "country"):
		return f.Country()
	case containsAny(name, "zip", "postal"):
		return f.Zip()
	case containsAny(name, "url", "website", "link"):
		return f.URL()
	case containsAny(name, "title", "subject"):
		return strings.TrimSuffix(f.Sentence(3), ".")
	case containsAny(name, "description", "comment", "note", "text", "body"):
		return f.Sentence(10)
	case containsAny(name, "status", "state"):
		return f.RandomString([]string{"active", "pending", "closed"})
	case containsAny(name, "color", "colour"):
		return f.Color()
	}
	return f.Word()
}

// reference picks a key of the referenced table. A self reference draws
// from rows generated so far, falling back to the row's own key.
func (g *generator) reference(c types.Column, done []types.Record, current types.Record) (any, error) {
	target := c.References.Table
	col := c.References.Column
	if col == "" {
		if target == g.table.Name {
			pk, _ := g.table.PrimaryKey()
			col = pk.Name
		} else {
			col = g.primaryKeys[target]
		}
	}

	var pool []any
	if target == g.table.Name {
		for _, rec := range done {
			pool = append(pool, rec[col])
		}
	} else {
		pool = g.pools[target][col]
	}

	if c.Optional && (len(pool) == 0 || (g.nullRate > 0 && g.faker.Float64() < g.nullRate)) {
		return nil, nil
	}
	if len(pool) == 0 {
		if target == g.table.Name && current[col] != nil {
			return current[col], nil
		}
		return nil, fmt.Errorf("seed: %s.%s references %s, which has no rows", g.table.Name, c.Name, target)
	}
	return pool[g.faker.Number(0, len(pool)-1)], nil
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
