// Package grpc exposes the narrator service over gRPC. Messages are
// google.protobuf.Struct values so no generated code is required; the field
// names match the HTTP JSON bodies.
package grpc

import (
	"context"
	"errors"

	"github.com/ekisa-team/lector/internal/cache"
	"github.com/ekisa-team/lector/internal/document"
	"github.com/ekisa-team/lector/internal/export"
	"github.com/ekisa-team/lector/internal/narration"
	"github.com/ekisa-team/lector/internal/service"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "lector.v1.Narrator"

// Full method names.
const (
	MethodSplit      = "/" + ServiceName + "/Split"
	MethodSynthesize = "/" + ServiceName + "/Synthesize"
	MethodExportAll  = "/" + ServiceName + "/ExportAll"
)

// NarratorServer is the server API for the lector.v1.Narrator service.
type NarratorServer interface {
	Split(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Synthesize(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExportAll(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes lector.v1.Narrator for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*NarratorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Split", Handler: unaryHandler(MethodSplit, NarratorServer.Split)},
		{MethodName: "Synthesize", Handler: unaryHandler(MethodSynthesize, NarratorServer.Synthesize)},
		{MethodName: "ExportAll", Handler: unaryHandler(MethodExportAll, NarratorServer.ExportAll)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "lector/v1/narrator.proto",
}

type unaryMethod func(NarratorServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, method unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return method(srv.(NarratorServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return method(srv.(NarratorServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// RegisterNarratorServer registers srv on s.
func RegisterNarratorServer(s grpc.ServiceRegistrar, srv NarratorServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// NarratorHandler implements NarratorServer on top of the narrator service.
type NarratorHandler struct {
	service *service.Narrator
}

// NewNarratorHandler creates a new NarratorHandler instance.
func NewNarratorHandler(service *service.Narrator) *NarratorHandler {
	return &NarratorHandler{service: service}
}

// Split returns {"parts": [...]} for {"text": "..."}.
func (h *NarratorHandler) Split(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	parts := h.service.Split(textField(in))
	return structpb.NewStruct(map[string]any{"parts": toList(parts)})
}

// Synthesize starts synthesis of {"text": "..."}.
func (h *NarratorHandler) Synthesize(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	batch, err := h.service.Synthesize(ctx, textField(in))
	if err != nil {
		return nil, toStatus(err)
	}

	urls := make([]string, len(batch.Artifacts))
	for i, a := range batch.Artifacts {
		urls[i] = "/audio/" + a.Name()
	}

	return structpb.NewStruct(map[string]any{
		"batch_id":   batch.ID,
		"audio_urls": toList(urls),
	})
}

// ExportAll merges the cached segments.
func (h *NarratorHandler) ExportAll(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	res, err := h.service.Export(ctx)
	if err != nil {
		return nil, toStatus(err)
	}

	return structpb.NewStruct(map[string]any{
		"export_url": "/audio/" + res.Artifact.Name(),
		"included":   len(res.Included),
		"skipped":    toList(res.Skipped),
	})
}

func textField(in *structpb.Struct) string {
	if in == nil {
		return ""
	}
	return in.GetFields()["text"].GetStringValue()
}

func toList(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, narration.ErrNoSegments),
		errors.Is(err, service.ErrIndexOutOfRange),
		errors.Is(err, document.ErrUnsupportedFormat):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, cache.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, export.ErrNoContent):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, narration.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
