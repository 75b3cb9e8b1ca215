package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/chazu/liveobjects/console"
	"github.com/chazu/liveobjects/image"
	"github.com/chazu/liveobjects/object"
)

// Procedure paths of the command service. Messages are google.protobuf.Struct
// values, so the Connect JSON protocol accepts plain JSON objects.
const (
	ServiceName = "liveobjects.v1.CommandService"

	RunCommandProcedure     = "/" + ServiceName + "/RunCommand"
	RunCommandsProcedure    = "/" + ServiceName + "/RunCommands"
	SnapshotProcedure       = "/" + ServiceName + "/Snapshot"
	ListObjectsProcedure    = "/" + ServiceName + "/ListObjects"
	DescribeObjectProcedure = "/" + ServiceName + "/DescribeObject"
)

// RequestIDHeader carries the id assigned to each request.
const RequestIDHeader = "X-Request-Id"

type (
	request  = connect.Request[structpb.Struct]
	response = connect.Response[structpb.Struct]
)

// CommandService runs commands against a registry owned by a Worker.
type CommandService struct {
	worker  *Worker
	store   *image.Store
	metrics *Metrics
}

// NewCommandService creates a CommandService. store may be nil, in which case
// Snapshot fails with FailedPrecondition.
func NewCommandService(worker *Worker, store *image.Store, metrics *Metrics) *CommandService {
	return &CommandService{
		worker:  worker,
		store:   store,
		metrics: metrics,
	}
}

// commandResult is what a command run on the worker hands back.
type commandResult struct {
	reply  object.Reply
	output string
}

// RunCommand runs one command line.
//
// Request: {"command": string}
// Response: {"outcome": "silent"|"printed"|"exit", "text": string, "output": string}
//
// An exit outcome is reported but does not stop the server.
func (s *CommandService) RunCommand(ctx context.Context, req *request) (*response, error) {
	command := stringField(req.Msg, "command")
	if strings.TrimSpace(command) == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("command is required"))
	}

	v, err := s.worker.Do(func(reg *object.Registry) (any, error) {
		var res commandResult
		output, err := captureOutput(reg, func() error {
			var err error
			res.reply, err = reg.RunCommand(command)
			return err
		})
		res.output = output
		s.metrics.objects.Set(float64(len(reg.Objects())))
		return res, err
	})
	if err != nil {
		s.metrics.commands.WithLabelValues("failed").Inc()
		return nil, connect.NewError(codeFor(err), err)
	}
	res := v.(commandResult)
	s.metrics.commands.WithLabelValues(res.reply.Outcome.String()).Inc()

	return newResponse(map[string]any{
		"outcome": res.reply.Outcome.String(),
		"text":    res.reply.Text,
		"output":  res.output,
	})
}

type batchResult struct {
	exited  bool
	printed []any
	output  string
}

// RunCommands runs a batch in order, stopping at the first exit.
//
// Request: {"commands": [string, ...]} or {"batch": "cmd;cmd;..."}
// Response: {"exited": bool, "printed": [string, ...], "output": string}
func (s *CommandService) RunCommands(ctx context.Context, req *request) (*response, error) {
	cmds := stringList(req.Msg, "commands")
	if batch := stringField(req.Msg, "batch"); batch != "" {
		cmds = append(cmds, console.Split(batch)...)
	}
	if len(cmds) == 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("commands or batch is required"))
	}

	v, err := s.worker.Do(func(reg *object.Registry) (any, error) {
		res := batchResult{printed: []any{}}
		output, err := captureOutput(reg, func() error {
			var err error
			res.exited, err = reg.RunCommands(cmds, func(text string) {
				res.printed = append(res.printed, text)
			})
			return err
		})
		res.output = output
		s.metrics.objects.Set(float64(len(reg.Objects())))
		return res, err
	})
	if err != nil {
		s.metrics.commands.WithLabelValues("failed").Inc()
		return nil, connect.NewError(codeFor(err), err)
	}
	res := v.(batchResult)
	s.metrics.commands.WithLabelValues("batch").Inc()

	return newResponse(map[string]any{
		"exited":  res.exited,
		"printed": res.printed,
		"output":  res.output,
	})
}

// Snapshot writes the registry to the attached image.
//
// Response: {"generation": int, "path": string, "backup": string, "checksum": string}
func (s *CommandService) Snapshot(ctx context.Context, req *request) (*response, error) {
	if s.store == nil {
		return nil, connect.NewError(connect.CodeFailedPrecondition, object.ErrNoImage)
	}

	v, err := s.worker.Do(func(reg *object.Registry) (any, error) {
		return s.store.Snapshot(reg)
	})
	s.metrics.snapshots.WithLabelValues(result(err)).Inc()
	if err != nil {
		return nil, connect.NewError(codeFor(err), err)
	}
	res := v.(*image.Result)

	return newResponse(map[string]any{
		"generation": res.Generation,
		"path":       res.Path,
		"backup":     res.Backup,
		"checksum":   res.Checksum,
	})
}

// ListObjects lists registered objects in serial order.
//
// Request: {"pattern": glob} (optional, defaults to "*")
// Response: {"objects": [{"name": string, "serial": int, "slots": int}, ...]}
func (s *CommandService) ListObjects(ctx context.Context, req *request) (*response, error) {
	pattern := stringField(req.Msg, "pattern")
	if pattern == "" {
		pattern = "*"
	}

	v, err := s.worker.Do(func(reg *object.Registry) (any, error) {
		objs, err := reg.Find(pattern)
		if err != nil {
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
		list := make([]any, 0, len(objs))
		for _, obj := range objs {
			list = append(list, map[string]any{
				"name":   obj.Name(),
				"serial": obj.Serial(),
				"slots":  len(obj.AllSlotNames()),
			})
		}
		return list, nil
	})
	if err != nil {
		return nil, asConnectError(err)
	}

	return newResponse(map[string]any{"objects": v})
}

// DescribeObject reports one object's slots.
//
// Request: {"name": string}
// Response: {"name", "serial", "fields", "parents", "methods", "yaml"}
func (s *CommandService) DescribeObject(ctx context.Context, req *request) (*response, error) {
	name := stringField(req.Msg, "name")
	if name == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("name is required"))
	}

	v, err := s.worker.Do(func(reg *object.Registry) (any, error) {
		obj, ok := reg.Lookup(name)
		if !ok {
			return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("object %q: %w", name, object.ErrNotFound))
		}
		return object.Inspect(obj), nil
	})
	if err != nil {
		return nil, asConnectError(err)
	}
	view := v.(object.ObjectView)
	doc, err := view.YAML()
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	return newResponse(map[string]any{
		"name":    view.Name,
		"serial":  view.Serial,
		"fields":  slotList(view.Fields),
		"parents": slotList(view.Parents),
		"methods": slotList(view.Methods),
		"yaml":    doc,
	})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// captureOutput runs fn with the registry's output redirected to a buffer.
func captureOutput(reg *object.Registry, fn func() error) (string, error) {
	var buf bytes.Buffer
	prev := reg.Output()
	reg.SetOutput(&buf)
	defer reg.SetOutput(prev)
	err := fn()
	return buf.String(), err
}

func newResponse(fields map[string]any) (*response, error) {
	id := uuid.NewString()
	fields["request_id"] = id
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	resp := connect.NewResponse(msg)
	resp.Header().Set(RequestIDHeader, id)
	return resp, nil
}

func slotList(slots []object.SlotView) []any {
	list := make([]any, 0, len(slots))
	for _, sv := range slots {
		entry := map[string]any{"name": sv.Name, "source": sv.Source}
		if sv.Value != "" {
			entry["value"] = sv.Value
		}
		list = append(list, entry)
	}
	return list
}

func stringField(msg *structpb.Struct, key string) string {
	return msg.GetFields()[key].GetStringValue()
}

func stringList(msg *structpb.Struct, key string) []string {
	var out []string
	for _, v := range msg.GetFields()[key].GetListValue().GetValues() {
		out = append(out, v.GetStringValue())
	}
	return out
}

func asConnectError(err error) error {
	var cerr *connect.Error
	if errors.As(err, &cerr) {
		return cerr
	}
	return connect.NewError(codeFor(err), err)
}

func codeFor(err error) connect.Code {
	switch {
	case errors.Is(err, ErrStopped):
		return connect.CodeUnavailable
	case errors.Is(err, object.ErrNoImage):
		return connect.CodeFailedPrecondition
	case errors.Is(err, object.ErrNotFound):
		return connect.CodeNotFound
	}
	return connect.CodeInternal
}
