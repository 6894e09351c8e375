// Package grpcserver hosts relay's gRPC endpoint. It serves the standard
// grpc.health.v1.Health service, driven by a periodic check of the event
// store, so load balancers and orchestrators can use stock health checkers.
//
// Example:
//
//	s := grpcserver.New(rt, grpcserver.Options{Logger: logger})
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":50051")
package grpcserver
