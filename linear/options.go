package linear

// Option is a function that configures GLM
type Option func(*GLM)

// GLM families understood by the engine
const (
	FamilyGaussian    = "gaussian"
	FamilyBinomial    = "binomial"
	FamilyMultinomial = "multinomial"
	FamilyPoisson     = "poisson"
	FamilyGamma       = "gamma"
	FamilyTweedie     = "tweedie"
)

// GLM solvers understood by the engine
const (
	SolverAuto              = "AUTO"
	SolverIRLSM             = "IRLSM"
	SolverLBFGS             = "L_BFGS"
	SolverCoordinateDescent = "COORDINATE_DESCENT"
)

// WithFamily sets the distribution family
func WithFamily(family string) Option {
	return func(g *GLM) {
		g.family = family
	}
}

// WithSolver sets the optimization solver
func WithSolver(solver string) Option {
	return func(g *GLM) {
		g.solver = solver
	}
}

// WithLambda sets the regularization strength. Without it the engine picks its default
func WithLambda(lambda float64) Option {
	return func(g *GLM) {
		g.lambda = &lambda
	}
}

// WithAlpha sets the elastic-net mixing between L1 (1) and L2 (0)
func WithAlpha(alpha float64) Option {
	return func(g *GLM) {
		g.alpha = &alpha
	}
}

// WithLambdaSearch enables the search over a lambda path
func WithLambdaSearch(search bool) Option {
	return func(g *GLM) {
		g.lambdaSearch = search
	}
}

// WithModelID sets the key of the model on the engine
func WithModelID(id string) Option {
	return func(g *GLM) {
		g.modelID = id
	}
}

// WithSeed sets the random seed used by the engine
func WithSeed(seed int64) Option {
	return func(g *GLM) {
		g.seed = &seed
	}
}

// WithMaxIterations caps the solver iterations
func WithMaxIterations(n int) Option {
	return func(g *GLM) {
		g.maxIterations = n
	}
}
