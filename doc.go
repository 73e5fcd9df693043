// Package remoteglm drives generalized linear model experiments on a remote
// in-memory analytics engine over its REST API.
//
// Data never leaves the engine except for the single columns needed to
// compute bucket boundaries locally. Every frame operation runs remotely and
// yields a new frame key; GLMs are trained by the engine's model builder and
// their metrics are read back as tables.
//
// # Quick Start
//
//	client, err := engine.New("http://localhost:54321")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if _, err := client.Connect(ctx, 2<<30); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.EndSession(ctx)
//
//	data, _ := frame.Import(ctx, client, "covtype.full.csv", "covtype.hex")
//	splits, _ := data.Split(ctx, []float64{0.7, 0.15}, 1234)
//
//	glm := linear.NewGLM(client,
//	    linear.WithFamily(linear.FamilyMultinomial),
//	    linear.WithSolver(linear.SolverLBFGS),
//	    linear.WithModelID("glm_v1"),
//	)
//	if err := glm.Fit(ctx, nil, "Cover_Type", splits[0], splits[1]); err != nil {
//	    log.Fatal(err)
//	}
//	hits, _ := glm.HitRatioTable(true)
//	metrics.RenderHitRatios(os.Stdout, hits)
//
// # Packages
//
//   - engine: REST client (sessions, import/parse, jobs, Rapids, model builders)
//   - engine/rapids: Rapids expression builder
//   - engine/enginetest: in-memory fake engine for tests
//   - frame: immutable handles on remote frames (split, filter, bind, cut, interactions)
//   - preprocessing: support-based column bucketing and interaction specs
//   - linear: remote GLM estimator
//   - metrics: confusion matrices, hit ratios, engine tables, ASCII rendering
//   - experiment: the cover type walkthrough and its report
//   - core/model, core/parallel: estimator state and a bounded worker pool
//   - pkg/config, pkg/errors, pkg/log: configuration, errors, structured logging
//
// The covtype_glm command under examples runs the whole walkthrough.
package remoteglm
