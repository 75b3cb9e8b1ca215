package server

import (
	"context"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls a remote CommandService.
type Client struct {
	runCommand     *connect.Client[structpb.Struct, structpb.Struct]
	runCommands    *connect.Client[structpb.Struct, structpb.Struct]
	snapshot       *connect.Client[structpb.Struct, structpb.Struct]
	listObjects    *connect.Client[structpb.Struct, structpb.Struct]
	describeObject *connect.Client[structpb.Struct, structpb.Struct]
}

// NewClient creates a client for the server at baseURL, for example
// "http://127.0.0.1:4567".
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	newClient := func(procedure string) *connect.Client[structpb.Struct, structpb.Struct] {
		return connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+procedure, opts...)
	}
	return &Client{
		runCommand:     newClient(RunCommandProcedure),
		runCommands:    newClient(RunCommandsProcedure),
		snapshot:       newClient(SnapshotProcedure),
		listObjects:    newClient(ListObjectsProcedure),
		describeObject: newClient(DescribeObjectProcedure),
	}
}

// CommandReply is the decoded result of RunCommand.
type CommandReply struct {
	RequestID string
	Outcome   string
	Text      string
	Output    string
}

// RunCommand runs one command remotely.
func (c *Client) RunCommand(ctx context.Context, command string) (*CommandReply, error) {
	msg, err := structpb.NewStruct(map[string]any{"command": command})
	if err != nil {
		return nil, err
	}
	resp, err := c.runCommand.CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return nil, err
	}
	return &CommandReply{
		RequestID: stringField(resp.Msg, "request_id"),
		Outcome:   stringField(resp.Msg, "outcome"),
		Text:      stringField(resp.Msg, "text"),
		Output:    stringField(resp.Msg, "output"),
	}, nil
}

// BatchReply is the decoded result of RunCommands.
type BatchReply struct {
	RequestID string
	Exited    bool
	Printed   []string
	Output    string
}

// RunBatch runs a ";"-separated batch remotely.
func (c *Client) RunBatch(ctx context.Context, batch string) (*BatchReply, error) {
	msg, err := structpb.NewStruct(map[string]any{"batch": batch})
	if err != nil {
		return nil, err
	}
	resp, err := c.runCommands.CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return nil, err
	}
	return &BatchReply{
		RequestID: stringField(resp.Msg, "request_id"),
		Exited:    resp.Msg.GetFields()["exited"].GetBoolValue(),
		Printed:   stringList(resp.Msg, "printed"),
		Output:    stringField(resp.Msg, "output"),
	}, nil
}

// SnapshotReply is the decoded result of Snapshot.
type SnapshotReply struct {
	RequestID  string
	Generation int
	Path       string
	Backup     string
}

// Snapshot asks the server to write its image.
func (c *Client) Snapshot(ctx context.Context) (*SnapshotReply, error) {
	resp, err := c.snapshot.CallUnary(ctx, connect.NewRequest(&structpb.Struct{}))
	if err != nil {
		return nil, err
	}
	return &SnapshotReply{
		RequestID:  stringField(resp.Msg, "request_id"),
		Generation: int(resp.Msg.GetFields()["generation"].GetNumberValue()),
		Path:       stringField(resp.Msg, "path"),
		Backup:     stringField(resp.Msg, "backup"),
	}, nil
}

// ObjectSummary is one entry of ListObjects.
type ObjectSummary struct {
	Name   string
	Serial int
	Slots  int
}

// ListObjects lists remote objects whose names match pattern.
func (c *Client) ListObjects(ctx context.Context, pattern string) ([]ObjectSummary, error) {
	msg, err := structpb.NewStruct(map[string]any{"pattern": pattern})
	if err != nil {
		return nil, err
	}
	resp, err := c.listObjects.CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return nil, err
	}
	var out []ObjectSummary
	for _, v := range resp.Msg.GetFields()["objects"].GetListValue().GetValues() {
		entry := v.GetStructValue()
		out = append(out, ObjectSummary{
			Name:   stringField(entry, "name"),
			Serial: int(entry.GetFields()["serial"].GetNumberValue()),
			Slots:  int(entry.GetFields()["slots"].GetNumberValue()),
		})
	}
	return out, nil
}

// DescribeObject returns the YAML description of a remote object.
func (c *Client) DescribeObject(ctx context.Context, name string) (string, error) {
	msg, err := structpb.NewStruct(map[string]any{"name": name})
	if err != nil {
		return "", err
	}
	resp, err := c.describeObject.CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return "", err
	}
	return stringField(resp.Msg, "yaml"), nil
}
