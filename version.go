// Package homelink is a home automation assistant that connects a chat model
// to smart home devices through the Model Context Protocol and exposes the
// result as an Agent2Agent (A2A) agent.
//
// The packages under pkg/ hold the pieces:
//
//	home         in-memory devices, scenes and event log
//	mcpserver    MCP tool server over the home
//	tool         tool interfaces, function tools and the MCP client toolset
//	model        chat model interface and the OpenAI / Azure OpenAI backend
//	agent        tool-calling run loop and conversations
//	session      chat client state: agent, MCP connection, history
//	server       A2A executor and HTTP server
//	a2aclient    one-shot A2A client
//
// The homelink command in cmd/homelink wires them together.
package homelink

import (
	"fmt"
	"runtime"
)

// Version information, overridable with -ldflags "-X".
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// Info describes the running build.
type Info struct {
	Version   string `json:"version"`
	BuildDate string `json:"build_date"`
	GitCommit string `json:"git_commit"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetVersion returns the build information.
func GetVersion() Info {
	return Info{
		Version:   Version,
		BuildDate: BuildDate,
		GitCommit: GitCommit,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

func (i Info) String() string {
	return fmt.Sprintf("homelink %s (built %s, commit %s, %s %s)",
		i.Version, i.BuildDate, i.GitCommit, i.GoVersion, i.Platform)
}
