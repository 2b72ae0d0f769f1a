package store

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"orderhub/internal/model"
)

// Group is the aggregate for one (channel, status) pair.
type Group struct {
	Channel model.Channel   `json:"canal"`
	Status  model.Status    `json:"statut"`
	Orders  int64           `json:"commandes"`
	Revenue decimal.Decimal `json:"montant_total"`
}

// Summary is the aggregation read consumed by dashboards and exports.
type Summary struct {
	Orders  int64           `json:"commandes"`
	Revenue decimal.Decimal `json:"montant_total"`
	Groups  []Group         `json:"groupes"`
}

func (s *Summary) add(g Group) {
	s.Orders += g.Orders
	s.Revenue = s.Revenue.Add(g.Revenue)
	s.Groups = append(s.Groups, g)
}

// Summarizer is implemented by backends that aggregate natively.
type Summarizer interface {
	Summary(ctx context.Context) (Summary, error)
}

// Summarize aggregates st per channel and status, natively when supported.
func Summarize(ctx context.Context, st Store) (Summary, error) {
	if s, ok := st.(Summarizer); ok {
		return s.Summary(ctx)
	}
	type key struct {
		ch model.Channel
		st model.Status
	}
	groups := map[key]*Group{}
	err := st.Range(ctx, func(o model.CanonicalOrder) error {
		k := key{o.Channel, o.Status}
		g, ok := groups[k]
		if !ok {
			g = &Group{Channel: o.Channel, Status: o.Status}
			groups[k] = g
		}
		g.Orders++
		g.Revenue = g.Revenue.Add(o.TotalAmount)
		return nil
	})
	if err != nil {
		return Summary{}, err
	}
	keys := make([]key, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ch != keys[j].ch {
			return keys[i].ch < keys[j].ch
		}
		return keys[i].st < keys[j].st
	})
	var sum Summary
	for _, k := range keys {
		sum.add(*groups[k])
	}
	return sum, nil
}
