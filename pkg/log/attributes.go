// Package log defines standard attribute keys for remote ML operations.
//
// Keys follow a hierarchical naming convention ("model.name",
// "frame.key") so logs can be filtered by category.

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the model, usually the remote model id.
	ModelNameKey = "model.name"

	// AlgorithmKey names the remote algorithm ("glm").
	AlgorithmKey = "model.algorithm"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "split", "cut", "interaction", "import"
	OperationKey = "ml.operation"

	// ComponentKey identifies which package is performing the operation.
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of the workflow.
	PhaseKey = "ml.phase"
)

// Remote engine context
const (
	// EngineURLKey is the base URL of the remote engine.
	EngineURLKey = "engine.url"

	// SessionKey is the remote session identifier.
	SessionKey = "engine.session"

	// EndpointKey is the REST endpoint being called.
	EndpointKey = "engine.endpoint"

	// JobKey is the key of a remote job.
	JobKey = "engine.job"

	// JobStatusKey is the last polled status of a remote job.
	JobStatusKey = "engine.job_status"

	// ProgressKey is the job progress in [0, 1].
	ProgressKey = "engine.progress"

	// RapidsKey holds a Rapids expression sent to the engine.
	RapidsKey = "engine.rapids"
)

// Frame and data shape
const (
	// FrameKey is the key of a remote frame.
	FrameKey = "frame.key"

	// ColumnKey names a single column.
	ColumnKey = "frame.column"

	// SamplesKey indicates the number of rows.
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of predictor columns.
	FeaturesKey = "data.features"

	// BucketsKey is the number of buckets produced for a column.
	BucketsKey = "data.buckets"
)

// Performance and metrics
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// AccuracyKey records model accuracy.
	AccuracyKey = "metrics.accuracy"

	// HitRatioKey records the top-1 hit ratio.
	HitRatioKey = "metrics.hit_ratio"
)

// Hyperparameters and configuration
const (
	// FamilyKey is the GLM distribution family.
	FamilyKey = "hyperparams.family"

	// SolverKey is the GLM solver.
	SolverKey = "hyperparams.solver"

	// RegularizationKey records regularization strength (lambda).
	RegularizationKey = "hyperparams.lambda"

	// LambdaSearchKey records whether lambda search is enabled.
	LambdaSearchKey = "hyperparams.lambda_search"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"
)

// Error context
const (
	// ErrorCodeKey provides a structured error code.
	ErrorCodeKey = "error.code"

	// StacktraceKey contains stack trace information.
	StacktraceKey = "error.stacktrace"
)

// Standard attribute values.
const (
	OperationImport      = "import"
	OperationSplit       = "split"
	OperationCut         = "cut"
	OperationInteraction = "interaction"
	OperationFit         = "fit"
	OperationScore       = "score"

	PhaseLoading    = "loading"
	PhaseTraining   = "training"
	PhaseValidation = "validation"
	PhaseFeatureEng = "feature_engineering"
	PhaseReporting  = "reporting"
)
