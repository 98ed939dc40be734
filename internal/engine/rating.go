package engine

import (
	"context"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/lazypower/argraph/internal/store"
	"github.com/lazypower/argraph/internal/symbols"
)

// trendingEpoch is the reference instant of the trending score, in unix
// seconds.
const trendingEpoch = 1134028003

// recomputeRating rebuilds the rating aggregate of a statement from its
// ballots, its debate arguments and, for Cards, the card boost. It reports
// whether the stored aggregate changed.
func (e *Engine) recomputeRating(ctx context.Context, obj *store.Object, prop *store.Property, st *store.Statement) (bool, error) {
	count, sum, err := e.aggregate(ctx, obj, prop)
	if err != nil {
		return false, err
	}

	next := store.Statement{
		RatingCount: count,
		RatingSum:   sum,
		Rating:      ratingOf(count, sum),
		Trending:    trending(sum, obj.CreatedAt),
	}
	if next.RatingCount == st.RatingCount && next.RatingSum == st.RatingSum &&
		next.Rating == st.Rating && next.Trending == st.Trending {
		return false, nil
	}
	if err := e.DB.SetRating(ctx, obj.ID, next); err != nil {
		return false, err
	}
	log.WithFields(logrus.Fields{
		"object": obj.ID,
		"count":  count,
		"sum":    sum,
	}).Debug("rating changed")
	return true, nil
}

func (e *Engine) aggregate(ctx context.Context, obj *store.Object, prop *store.Property) (int, int, error) {
	if prop != nil {
		if _, debate := e.Symbols.DebateWeight(prop.KeyID); debate {
			grounded, err := e.grounded(ctx, prop.ValueID)
			if err != nil || !grounded {
				return 0, 0, err
			}
		}
	}

	count, sum, err := e.DB.BallotTotals(ctx, obj.ID)
	if err != nil {
		return 0, 0, err
	}

	arguments, err := e.DB.PropertiesOf(ctx, obj.ID, e.Symbols.DebateKeyIDs())
	if err != nil {
		return 0, 0, err
	}
	for _, arg := range arguments {
		if arg.Trashed || arg.RatingSum <= 0 {
			continue
		}
		weight, _ := e.Symbols.DebateWeight(arg.KeyID)
		count += arg.RatingCount
		sum += weight * arg.RatingSum
	}

	if obj.Type == store.TypeCard {
		boost, err := e.cardBoost(ctx, obj)
		if err != nil {
			return 0, 0, err
		}
		count += boost
		sum += boost
	}
	return count, sum, nil
}

// grounded reports whether the value an argument stands on is itself rated,
// positively and not trashed.
func (e *Engine) grounded(ctx context.Context, groundID int64) (bool, error) {
	ground, err := e.DB.GetStatement(ctx, groundID)
	if err != nil {
		return false, err
	}
	return ground != nil && !ground.Trashed && ground.RatingSum > 0, nil
}

// cardBoost rewards Cards that are well filled in and well connected.
func (e *Engine) cardBoost(ctx context.Context, card *store.Object) (int, error) {
	score := math.Atan(float64(len(card.Properties))/5) * 4 / math.Pi

	if len(card.Properties[e.Symbols.MustResolve(symbols.KeyLogo)]) > 0 ||
		len(card.Properties[e.Symbols.MustResolve(symbols.KeyScreenshot)]) > 0 {
		score *= 10
	}

	neighbours, err := e.DB.NeighbourIDs(ctx, card.ID)
	if err != nil {
		return 0, err
	}
	types, err := e.DB.ObjectTypes(ctx, neighbours)
	if err != nil {
		return 0, err
	}
	cards := 0
	for _, typ := range types {
		if typ == store.TypeCard {
			cards++
		}
	}
	score *= math.Max(float64(cards), 0.5)

	locations := len(card.Properties[e.Symbols.MustResolve(symbols.KeyLocation)])
	score *= math.Max(float64(locations), 1)

	return int(math.Round(score)), nil
}

// recomputeTrashed derives the trashed flag from a live "trashed = true"
// property. It reports whether the flag changed.
func (e *Engine) recomputeTrashed(ctx context.Context, obj *store.Object, st *store.Statement) (bool, error) {
	trashed, err := e.DB.HasLiveProperty(ctx, obj.ID,
		e.Symbols.MustResolve(symbols.KeyTrashed), e.Symbols.MustResolve(symbols.True))
	if err != nil {
		return false, err
	}
	if trashed == st.Trashed {
		return false, nil
	}
	if err := e.DB.SetTrashed(ctx, obj.ID, trashed); err != nil {
		return false, err
	}
	log.WithFields(logrus.Fields{"object": obj.ID, "trashed": trashed}).Info("trashed state changed")
	return true, nil
}

func ratingOf(count, sum int) float64 {
	if count == 0 {
		return 0
	}
	return float64(sum) / float64(count)
}

// trending ranks by votes on a log scale plus age, so a statement needs ten
// times the votes to stay level with one posted 12.5 hours later.
func trending(sum int, createdAtMs int64) float64 {
	sign := 0.0
	switch {
	case sum > 0:
		sign = 1
	case sum < 0:
		sign = -1
	}
	age := float64(createdAtMs/1000 - trendingEpoch)
	return math.Log10(math.Max(float64(sum), 1)) + sign*age/45000
}
