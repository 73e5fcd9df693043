package preprocessing

import (
	"context"
	"strings"

	"github.com/YuminosukeSato/remoteglm/frame"
	"github.com/YuminosukeSato/remoteglm/pkg/errors"
	"github.com/YuminosukeSato/remoteglm/pkg/log"
)

// 交互作用列の既定値
const (
	DefaultMaxFactors    = 1000
	DefaultMinOccurrence = 100
)

// InteractionSpec はエンジンに要求する交互作用列の指定
type InteractionSpec struct {
	// Factors は組み合わせるカテゴリ列
	Factors []string
	// Pairwise が true なら Factors の全ペア、false なら全列を1つに組み合わせる
	Pairwise bool
	// MaxFactors は1列あたりに残すレベル数の上限
	MaxFactors int
	// MinOccurrence はレベルとして残すための最小出現回数
	MinOccurrence int
}

// DefaultPairwise は被覆データ用のペアワイズ交互作用の指定を返す
func DefaultPairwise() InteractionSpec {
	return InteractionSpec{
		Factors: []string{
			"Elevation_cut", "Wilderness_Area", "Soil_Type",
			"Hillshade_Noon_cut", "Hillshade_9am_cut", "Hillshade_3pm_cut",
			"Horizontal_Distance_To_Hydrology_cut", "Slope_cut",
			"Horizontal_Distance_To_Roadways_cut", "Aspect_cut",
		},
		Pairwise:      true,
		MaxFactors:    DefaultMaxFactors,
		MinOccurrence: DefaultMinOccurrence,
	}
}

// DefaultThreeWay は被覆データ用の3列交互作用の指定を返す
func DefaultThreeWay() InteractionSpec {
	return InteractionSpec{
		Factors:       []string{"Elevation_cut", "Wilderness_Area", "Soil_Type"},
		Pairwise:      false,
		MaxFactors:    DefaultMaxFactors,
		MinOccurrence: DefaultMinOccurrence,
	}
}

// Validate は指定を検証する
func (s InteractionSpec) Validate() error {
	if len(s.Factors) < 2 {
		return errors.NewValidationError("Factors", "need at least two columns", s.Factors)
	}
	seen := make(map[string]bool, len(s.Factors))
	for _, f := range s.Factors {
		if seen[f] {
			return errors.NewValidationError("Factors", "duplicate column "+f, s.Factors)
		}
		seen[f] = true
	}
	if s.MaxFactors <= 0 {
		return errors.NewValidationError("MaxFactors", "must be positive", s.MaxFactors)
	}
	if s.MinOccurrence <= 0 {
		return errors.NewValidationError("MinOccurrence", "must be positive", s.MinOccurrence)
	}
	return nil
}

// OutputColumns はエンジンが作る交互作用列の名前を返す
func (s InteractionSpec) OutputColumns() []string {
	if !s.Pairwise {
		return []string{joinNames(s.Factors)}
	}
	var out []string
	for i := 0; i < len(s.Factors); i++ {
		for j := i + 1; j < len(s.Factors); j++ {
			out = append(out, joinNames([]string{s.Factors[i], s.Factors[j]}))
		}
	}
	return out
}

func joinNames(names []string) string {
	return strings.Join(names, "_")
}

// AddInteractions は各フレームについて specs の交互作用列をエンジンに作らせ、列方向に結合する
//
// 交互作用はフレームごとに計算される。戻り値は frames と同じ順序。
func AddInteractions(ctx context.Context, specs []InteractionSpec, frames ...*frame.Frame) ([]*frame.Frame, error) {
	for _, s := range specs {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}
	logger := log.GetLoggerWithName("preprocessing.interaction")

	out := make([]*frame.Frame, len(frames))
	for i, f := range frames {
		inters := make([]*frame.Frame, 0, len(specs))
		for _, s := range specs {
			inter, err := f.Interaction(ctx, s.Factors, s.Pairwise, s.MaxFactors, s.MinOccurrence)
			if err != nil {
				return nil, errors.Wrapf(err, "interaction on %s", f.Key())
			}
			inters = append(inters, inter)
		}
		joined, err := f.Cbind(ctx, inters...)
		if err != nil {
			return nil, errors.Wrapf(err, "bind interactions to %s", f.Key())
		}
		out[i] = joined

		logger.Info("Interactions added",
			log.OperationKey, log.OperationInteraction,
			log.FrameKey, joined.Key(),
			log.FeaturesKey, len(joined.Columns()),
		)
	}
	return out, nil
}
