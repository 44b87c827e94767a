// Package instrumentation provides OpenTelemetry metrics and tracing for the
// OpenID Provider core.
//
// All instruments are created through a single Instrumentation value so the
// embedding application controls the providers. When Enabled is false (or no
// exporter is wired), no-op providers are used and recording has zero
// overhead.
//
// Example:
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		ServiceName:    "my-idp",
//		ServiceVersion: "1.2.3",
//		Enabled:        true,
//	})
//	if err != nil {
//		return err
//	}
//	defer inst.Shutdown(ctx)
//
//	store.SetInstrumentation(inst)
package instrumentation
