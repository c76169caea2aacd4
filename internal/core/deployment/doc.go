// Package deployment decides how each backing service of a project is
// provided: reuse a running instance, create one, run one alongside an
// incompatible instance, or skip it.
//
// The package is the functional core of planning. Select and Aggregate take
// the prober snapshot, the declared workflow-engine SDK version and the
// service configuration as values and return decisions as values. The only
// outside contact is the PortChecker, which the shell implements with a
// read-only TCP dial (internal/shell/netcheck).
//
// # Functions
//
//   - Select: one service, one decision (REUSE, CREATE, ALONGSIDE or SKIP)
//   - Aggregate: every enabled service, one immutable DeploymentPlanSummary
//   - Ports: AlongsidePort, ResolveAlongsidePort, NextFreePort
//   - Naming: InstanceName, ConnectionString
//
// # Usage
//
//	summary, err := deployment.Aggregate(ctx, deployment.PlanRequest{
//	    Project:       "shop",
//	    Services:      deployment.DefaultServices(),
//	    Detected:      detected,
//	    EngineVersion: "1.7.0",
//	    Ports:         netcheck.New(time.Second, logger),
//	})
package deployment
