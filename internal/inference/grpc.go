package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"image/jpeg"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	apperrors "github.com/GriffinCanCode/cinescribe/internal/errors"
	"github.com/GriffinCanCode/cinescribe/internal/trace"
)

// CompleteMethod is the unary method served by the inference sidecar.
// Request and response are google.protobuf.Struct messages:
//
//	request:  {model, system, prompt, images: [base64 jpeg], max_tokens, temperature}
//	response: {text}
const CompleteMethod = "/cinescribe.inference.v1.Inference/Complete"

// GRPC calls an inference sidecar over gRPC without generated stubs.
type GRPC struct {
	ep   Endpoint
	conn *grpc.ClientConn
}

// NewGRPC creates the client. Extra dial options are appended after the defaults.
func NewGRPC(ep Endpoint, opts ...grpc.DialOption) (*GRPC, error) {
	ep.JPEGQuality = orDefault(ep.JPEGQuality, 85)
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(trace.UnaryClientInterceptor(ep.Model)),
	}, opts...)
	conn, err := grpc.NewClient(ep.Addr, opts...)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeConfigInvalid, "dial inference %s", ep.Addr)
	}
	return &GRPC{ep: ep, conn: conn}, nil
}

func (g *GRPC) Close() error {
	return g.conn.Close()
}

func (g *GRPC) buildRequest(req Request) (*structpb.Struct, error) {
	images := make([]any, 0, len(req.Images))
	for _, img := range req.Images {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: g.ep.JPEGQuality}); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeInvalidArgument, "encode image")
		}
		images = append(images, base64.StdEncoding.EncodeToString(buf.Bytes()))
	}
	s, err := structpb.NewStruct(map[string]any{
		"model":       g.ep.Model,
		"system":      req.System,
		"prompt":      req.Prompt,
		"images":      images,
		"max_tokens":  req.MaxTokens,
		"temperature": temperature(req, g.ep),
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "build inference request")
	}
	return s, nil
}

func (g *GRPC) Complete(ctx context.Context, req Request) (string, error) {
	in, err := g.buildRequest(req)
	if err != nil {
		return "", err
	}
	if g.ep.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.ep.Timeout)
		defer cancel()
	}

	out := new(structpb.Struct)
	if err := g.conn.Invoke(ctx, CompleteMethod, in, out); err != nil {
		return "", apperrors.FromGRPCError(err).WithMetadata("model", g.ep.Model)
	}
	text := clean(out.GetFields()["text"].GetStringValue())
	if text == "" {
		return "", emptyCompletion(g.ep.Model)
	}
	return text, nil
}
