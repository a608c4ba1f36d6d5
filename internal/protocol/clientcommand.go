package protocol

// ClientCommand is the request envelope a client sends to the service
// (§4.10), grounded on the original's smelt-data/src/client_commands.rs
// ClientCommand constructors.
type ClientCommand struct {
	SetCommands *SetCommandsReq `json:"set_commands,omitempty"`
	RunOne      *RunOneReq      `json:"run_one,omitempty"`
	RunMany     *RunManyReq     `json:"run_many,omitempty"`
	RunType     *RunTypeReq     `json:"run_type,omitempty"`
	GetConfig   *struct{}       `json:"get_config,omitempty"`
}

// SetCommandsReq carries a raw YAML command-set document to be parsed and
// installed as the active graph.
type SetCommandsReq struct {
	CommandContent string `json:"command_content"`
}

// RunOneReq requests execution of a single named command (plus its
// dependency closure).
type RunOneReq struct {
	CommandName string `json:"command_name"`
}

// RunManyReq requests execution of several named commands.
type RunManyReq struct {
	CommandNames []string `json:"command_names"`
}

// RunTypeReq requests execution of every command matching a TargetType.
type RunTypeReq struct {
	TypeInfo string `json:"type_info"`
}

func SendCommandsCommand(content string) ClientCommand {
	return ClientCommand{SetCommands: &SetCommandsReq{CommandContent: content}}
}

func ExecuteCommandCommand(name string) ClientCommand {
	return ClientCommand{RunOne: &RunOneReq{CommandName: name}}
}

func ExecuteManyCommand(names []string) ClientCommand {
	return ClientCommand{RunMany: &RunManyReq{CommandNames: names}}
}

func ExecuteTypeCommand(typeInfo string) ClientCommand {
	return ClientCommand{RunType: &RunTypeReq{TypeInfo: typeInfo}}
}

func GetConfigCommand() ClientCommand {
	return ClientCommand{GetConfig: &struct{}{}}
}

// ClientResp is the synchronous reply returned for a ClientCommand,
// distinct from the asynchronous Event stream that follows it.
type ClientResp struct {
	CommandSettingFailed *CommandSettingFailedResp `json:"command_setting_failed,omitempty"`
	CommandSettingOK     *CommandSettingOKResp     `json:"command_setting_ok,omitempty"`
	Invoked              *InvokedResp              `json:"invoked,omitempty"`
	Config               *ConfigureSmelt           `json:"config,omitempty"`
	Error                *ErrorEvent               `json:"error,omitempty"`
}

// CommandSettingFailedResp reports how many validation errors were found
// while installing a command set.
type CommandSettingFailedResp struct {
	Count int `json:"count"`
}

// CommandSettingOKResp reports how many commands were installed.
type CommandSettingOKResp struct {
	Count int `json:"count"`
}

// InvokedResp carries the trace id a caller should use to correlate the
// Event stream for the invocation it just triggered.
type InvokedResp struct {
	TraceID string `json:"trace_id"`
}
