// Package errors はプロジェクト全体のエラーハンドリングと警告システムを提供します。
// リモート解析エンジンとのやり取りで発生するエラーを構造化された形で表現します。
package errors

import (
	"fmt"
	"log"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	グローバル警告ハンドリング
//
// ===========================================================================
var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		// デフォルトのハンドラは標準エラー出力にログを出す
		log.Printf("remoteglm-warning: %v\n", w)
	}
	// zerologロガー（循環importを避けるため遅延初期化）
	zerologWarnFunc func(warning error)
)

// SetWarningHandler はライブラリ全体の警告ハンドラを設定します。
//
// 例:
//
//	errors.SetWarningHandler(func(w error) {
//	    // 警告を無視する
//	})
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc はzerolog警告関数を設定します（循環importを避けるため）。
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn は警告を発生させます。
// zerologが設定されている場合は構造化ログとして出力し、そうでなければ従来のハンドラを使用します。
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}

	if warningHandler != nil {
		warningHandler(w)
	}
}

// ===========================================================================
//
//	警告型
//
// ===========================================================================

// ConvergenceWarning はリモートのソルバーが収束しなかったと報告した場合の警告です。
type ConvergenceWarning struct {
	Algorithm string
	ModelID   string
	Message   string
}

func (w *ConvergenceWarning) Error() string {
	return fmt.Sprintf("%s model %s reported: %s", w.Algorithm, w.ModelID, w.Message)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *ConvergenceWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("algorithm", w.Algorithm).
		Str("model_id", w.ModelID).
		Str("message", w.Message).
		Str("type", "ConvergenceWarning")
}

// NewConvergenceWarning は新しいConvergenceWarningを作成します。
func NewConvergenceWarning(algorithm, modelID, message string) *ConvergenceWarning {
	return &ConvergenceWarning{Algorithm: algorithm, ModelID: modelID, Message: message}
}

// UndefinedMetricWarning は評価指標が計算できない場合に発生する警告です。
// 例えば、混同行列の合計が0の場合など。
type UndefinedMetricWarning struct {
	Metric    string
	Condition string
	Result    float64 // この条件で返される値
}

func (w *UndefinedMetricWarning) Error() string {
	return fmt.Sprintf("'%s' is ill-defined and being set to %f due to %s.", w.Metric, w.Result, w.Condition)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *UndefinedMetricWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("metric", w.Metric).
		Str("condition", w.Condition).
		Float64("result", w.Result).
		Str("type", "UndefinedMetricWarning")
}

// NewUndefinedMetricWarning は新しいUndefinedMetricWarningを作成します。
func NewUndefinedMetricWarning(metric, condition string, result float64) *UndefinedMetricWarning {
	return &UndefinedMetricWarning{Metric: metric, Condition: condition, Result: result}
}

// ===========================================================================
//
//	構造化されたエラー型
//
// ===========================================================================

// NotFittedError はモデルが未学習の状態で結果にアクセスした場合のエラーです。
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("remoteglm: %s: this model is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError は新しいNotFittedErrorを作成し、スタックトレースを付与します。
func NewNotFittedError(modelName, method string) error {
	err := &NotFittedError{ModelName: modelName, Method: method}
	return errors.WithStack(err)
}

// DimensionError はテーブルや行列の次元が期待値と異なる場合のエラーです。
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns
}

func (e *DimensionError) Error() string {
	axisName := "columns"
	if e.Axis == 0 {
		axisName = "rows"
	}
	return fmt.Sprintf("remoteglm: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, axisName, e.Expected, e.Got)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("type", "DimensionError")
}

// NewDimensionError は新しいDimensionErrorを作成し、スタックトレースを付与します。
func NewDimensionError(op string, expected, got, axis int) error {
	err := &DimensionError{Op: op, Expected: expected, Got: got, Axis: axis}
	return errors.WithStack(err)
}

// ValidationError は入力パラメータの検証に失敗した場合のエラーです。
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("remoteglm: validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError は新しいValidationErrorを作成し、スタックトレースを付与します。
func NewValidationError(param, reason string, value interface{}) error {
	err := &ValidationError{ParamName: param, Reason: reason, Value: value}
	return errors.WithStack(err)
}

// ValueError は引数の値が不適切な場合に発生するエラーです。
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("remoteglm: %s: %s", e.Op, e.Message)
}

// NewValueError は新しいValueErrorを作成し、スタックトレースを付与します。
func NewValueError(op, message string) error {
	err := &ValueError{Op: op, Message: message}
	return errors.WithStack(err)
}

// ModelError はモデルに関する一般的なエラーです。
type ModelError struct {
	Op   string
	Kind string
	Err  error
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("remoteglm: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("remoteglm: %s: %s", e.Op, e.Kind)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// NewModelError は新しいModelErrorを作成し、スタックトレースを付与します。
func NewModelError(op, kind string, err error) error {
	modelErr := &ModelError{Op: op, Kind: kind, Err: err}
	return errors.WithStack(modelErr)
}

// ===========================================================================
//
//	リモートエンジン由来のエラー型
//
// ===========================================================================

// RemoteError はリモートエンジンが2xx以外のステータスを返した場合のエラーです。
type RemoteError struct {
	Method     string
	Endpoint   string
	StatusCode int
	Message    string // エンジンが返した例外メッセージ
}

func (e *RemoteError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("remoteglm: %s %s: status %d: %s", e.Method, e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("remoteglm: %s %s: status %d", e.Method, e.Endpoint, e.StatusCode)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *RemoteError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("method", e.Method).
		Str("endpoint", e.Endpoint).
		Int("status", e.StatusCode).
		Str("message", e.Message).
		Str("type", "RemoteError")
}

// NewRemoteError は新しいRemoteErrorを作成し、スタックトレースを付与します。
func NewRemoteError(method, endpoint string, status int, message string) error {
	err := &RemoteError{Method: method, Endpoint: endpoint, StatusCode: status, Message: message}
	return errors.WithStack(err)
}

// JobError はリモートジョブがFAILEDまたはCANCELLEDで終了した場合のエラーです。
type JobError struct {
	JobKey      string
	Description string
	Status      string
	Exception   string
}

func (e *JobError) Error() string {
	if e.Exception != "" {
		return fmt.Sprintf("remoteglm: job %s (%s) %s: %s", e.JobKey, e.Description, e.Status, e.Exception)
	}
	return fmt.Sprintf("remoteglm: job %s (%s) %s", e.JobKey, e.Description, e.Status)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *JobError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("job_key", e.JobKey).
		Str("description", e.Description).
		Str("status", e.Status).
		Str("exception", e.Exception).
		Str("type", "JobError")
}

// NewJobError は新しいJobErrorを作成し、スタックトレースを付与します。
func NewJobError(key, description, status, exception string) error {
	err := &JobError{JobKey: key, Description: description, Status: status, Exception: exception}
	return errors.WithStack(err)
}

// BinningError は列のビン分割に失敗した場合のエラーです。
type BinningError struct {
	Column string
	Reason string
	Err    error
}

func (e *BinningError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("remoteglm: binning %s: %s: %v", e.Column, e.Reason, e.Err)
	}
	return fmt.Sprintf("remoteglm: binning %s: %s", e.Column, e.Reason)
}

func (e *BinningError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *BinningError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("column", e.Column).
		Str("reason", e.Reason).
		Str("type", "BinningError")
}

// NewBinningError は新しいBinningErrorを作成し、スタックトレースを付与します。
func NewBinningError(column, reason string, err error) error {
	return errors.WithStack(&BinningError{Column: column, Reason: reason, Err: err})
}

// ===========================================================================
//
//	cockroachdb/errors ラッパー関数
//
// ===========================================================================

// Is はエラーが特定のターゲットエラーかどうかを判定します。
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As はエラーが特定の型にキャスト可能かどうかを判定します。
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap は既存のエラーをメッセージ付きでラップします。
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf は既存のエラーをフォーマット文字列でラップします。
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New は新しいエラーを作成します。
func New(message string) error {
	return errors.New(message)
}

// Newf は新しいフォーマット済みエラーを作成します。
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack はエラーにスタックトレースを付与します。
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	共通エラー変数
//
// ===========================================================================

var (
	// ErrEmptyData は空のデータが渡された場合のエラーです。
	ErrEmptyData = New("empty data")

	// ErrNoSession はセッションが確立されていない場合のエラーです。
	ErrNoSession = New("no session established")

	// ErrColumnNotFound は指定された列がフレームに存在しない場合のエラーです。
	ErrColumnNotFound = New("column not found")
)
