// README: Pricing service turns two points and a ride class into a distance/time/fare quote.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/tejith7/project-bolt/internal/config"
	"github.com/tejith7/project-bolt/internal/geo"
	"github.com/tejith7/project-bolt/internal/logger"
	"github.com/tejith7/project-bolt/internal/types"
)

var (
	ErrEstimation   = errors.New("estimation failed")
	ErrUnknownClass = errors.New("unknown ride class")
)

type RateSource interface {
	GetRate(ctx context.Context, class RideClass) (Rate, error)
}

type Service struct {
	rates    RateSource
	tariff   Tariff
	defaults map[RideClass]Rate
	log      logger.Logger
}

func NewService(rates RateSource, cfg config.PricingConfig, log logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		rates: rates,
		tariff: Tariff{
			BaseFare:    cfg.BaseFare,
			PerMile:     cfg.PerMile,
			AvgSpeedMph: cfg.AvgSpeedMph,
			Currency:    cfg.Currency,
		},
		defaults: map[RideClass]Rate{
			ClassEconomy: {Class: ClassEconomy, Name: "Economy", Description: "Affordable rides for everyday", Multiplier: cfg.Economy},
			ClassComfort: {Class: ClassComfort, Name: "Comfort", Description: "Newer cars with extra legroom", Multiplier: cfg.Comfort},
			ClassPremium: {Class: ClassPremium, Name: "Premium", Description: "Luxury vehicles with top drivers", Multiplier: cfg.Premium},
		},
		log: log.Action("pricing"),
	}
}

// Estimate is the pure quote formula: straight-line miles rounded to one
// decimal, minutes at the average speed, and (base + miles*rate)*multiplier
// rounded to cents. Identical inputs always give identical quotes.
func (s *Service) Estimate(pickup, destination types.Point, multiplier float64) (Quote, error) {
	if !pickup.Valid() || !destination.Valid() {
		return Quote{}, fmt.Errorf("%w: coordinates out of range", ErrEstimation)
	}
	if math.IsNaN(multiplier) || math.IsInf(multiplier, 0) || multiplier <= 0 {
		return Quote{}, fmt.Errorf("%w: bad multiplier %v", ErrEstimation, multiplier)
	}
	if s.tariff.AvgSpeedMph <= 0 {
		return Quote{}, fmt.Errorf("%w: average speed must be positive", ErrEstimation)
	}

	miles := geo.RoundTo(geo.KmToMiles(geo.HaversineKm(pickup, destination)), 1)
	minutes := int(math.Round(miles / s.tariff.AvgSpeedMph * 60))
	fare := types.MoneyFromUnits((s.tariff.BaseFare+miles*s.tariff.PerMile)*multiplier, s.tariff.Currency)

	return Quote{DistanceMi: miles, TimeMin: minutes, Fare: fare}, nil
}

// Quote resolves the class multiplier and estimates from scratch.
func (s *Service) Quote(ctx context.Context, pickup, destination types.Point, class RideClass) (Quote, error) {
	rate, err := s.Rate(ctx, class)
	if err != nil {
		return Quote{}, err
	}
	return s.Estimate(pickup, destination, rate.Multiplier)
}

// Rate returns the class rate, preferring a stored override over the configured default.
func (s *Service) Rate(ctx context.Context, class RideClass) (Rate, error) {
	def, known := s.defaults[class]
	if !known {
		return Rate{}, fmt.Errorf("%w: %q", ErrUnknownClass, class)
	}
	if s.rates == nil {
		return def, nil
	}
	rate, err := s.rates.GetRate(ctx, class)
	if errors.Is(err, ErrNoRate) {
		return def, nil
	}
	if err != nil {
		s.log.Warn("rate lookup failed, using default", "class", class, "err", err)
		return def, nil
	}
	if rate.Name == "" {
		rate.Name, rate.Description = def.Name, def.Description
	}
	return rate, nil
}

// Classes lists every ride class with its effective multiplier.
func (s *Service) Classes(ctx context.Context) []Rate {
	out := make([]Rate, 0, len(s.defaults))
	for _, c := range []RideClass{ClassEconomy, ClassComfort, ClassPremium} {
		r, err := s.Rate(ctx, c)
		if err != nil {
			continue
		}
		out = append(out, r)
	}
	return out
}
