package model

import "context"

// FrameRef は学習・検証に使うリモートフレームへの参照
type FrameRef interface {
	// Key はエンジン上のフレームキーを返す
	Key() string
	// Columns は列名を順序どおりに返す
	Columns() []string
}

// Fitter はリモートで学習可能なモデルのインターフェース
type Fitter interface {
	// Fit は x を説明変数、y を目的変数としてリモートでモデルを学習させる。
	// valid が nil の場合は検証フレームなしで学習する
	Fit(ctx context.Context, x []string, y string, train, valid FrameRef) error
}

// HitRatioReporter は多クラス分類のヒット率表を返すモデル
type HitRatioReporter interface {
	// HitRatios は k=1.. のヒット率を返す。valid が true なら検証フレームの値
	HitRatios(valid bool) ([]float64, error)
}

// AccuracyReporter は正解率を返すモデル
type AccuracyReporter interface {
	Accuracy(valid bool) (float64, error)
}

// ParameterGetter はハイパーパラメータを公開するモデル
type ParameterGetter interface {
	// GetParams はエンジンに送るパラメータ名をキーとしたハイパーパラメータを返す
	GetParams() map[string]interface{}
}

// Classifier はリモート分類モデルのインターフェース
type Classifier interface {
	Fitter
	AccuracyReporter
	ParameterGetter

	// IsFitted はモデルが学習済みかどうかを返す
	IsFitted() bool
}
