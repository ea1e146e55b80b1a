package server

import (
	"context"
	"encoding/json"
	"fmt"

	"trafficwatch/internal/capture"
	"trafficwatch/internal/core"
	"trafficwatch/internal/flowtable"
	"trafficwatch/internal/ifaceinfo"
	"trafficwatch/internal/report"
)

// interfaceReply is one entry of the get_interfaces response: capture
// availability from libpcap, enriched with best-effort link state.
type interfaceReply struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Addresses   []string `json:"addresses"`
	Up          bool     `json:"up"`
	Driver      string   `json:"driver,omitempty"`
}

// dispatch decodes one Envelope, runs the corresponding CoreController
// command, and returns the reply Envelope (typeOk/typeErr/a reply
// type) to send back, carrying the same request ID.
func dispatch(ctx context.Context, ctl *core.Controller, in Envelope) Envelope {
	switch in.Type {
	case typeGetInterfaces:
		devices, err := capture.ListInterfaces()
		if err != nil {
			return errEnvelope(in.ID, core.KindInternal, err.Error())
		}
		replies := make([]interfaceReply, 0, len(devices))
		for _, d := range devices {
			link := ifaceinfo.Link(d.Name)
			replies = append(replies, interfaceReply{
				Name:        d.Name,
				Description: d.Description,
				Addresses:   d.Addresses,
				Up:          link.Up,
				Driver:      link.Driver,
			})
		}
		payload, _ := json.Marshal(replies)
		return Envelope{ID: in.ID, Type: typeInterfacesReply, Payload: payload}

	case typeStartCapture:
		var req startCaptureRequest
		if err := json.Unmarshal(in.Payload, &req); err != nil {
			return errEnvelope(in.ID, core.KindInternal, "invalid start_capture payload: "+err.Error())
		}
		err := ctl.StartCapture(core.StartCaptureCmd{
			Interface:      req.Interface,
			PortLow:        req.PortLow,
			PortHigh:       req.PortHigh,
			IngressKbps:    req.IngressKbps,
			IngressBurstKB: req.IngressBurstKB,
		})
		return commandEnvelope(in.ID, err)

	case typeStartReplay:
		var req startReplayRequest
		if err := json.Unmarshal(in.Payload, &req); err != nil {
			return errEnvelope(in.ID, core.KindInternal, "invalid start_replay payload: "+err.Error())
		}
		err := ctl.StartReplay(core.StartReplayCmd{
			Path:     req.Path,
			PortLow:  req.PortLow,
			PortHigh: req.PortHigh,
		})
		return commandEnvelope(in.ID, err)

	case typeStopCapture:
		return commandEnvelope(in.ID, ctl.StopCapture())

	case typeClearFlows:
		ctl.ClearFlows()
		return Envelope{ID: in.ID, Type: typeOk}

	case typeSnapshot:
		var req snapshotRequest
		if err := json.Unmarshal(in.Payload, &req); err != nil {
			return errEnvelope(in.ID, core.KindInternal, "invalid snapshot payload: "+err.Error())
		}
		result := ctl.Snapshot(core.SnapshotCmd{
			View:   parseView(req.View),
			Filter: parseFilter(req),
			Sort:   parseSort(req.Sort),
			Page:   req.Page,
		})
		payload, _ := json.Marshal(result)
		return Envelope{ID: in.ID, Type: typeSnapshotReply, Payload: payload}

	case typeThrottlePid:
		var req throttlePidRequest
		if err := json.Unmarshal(in.Payload, &req); err != nil {
			return errEnvelope(in.ID, core.KindInternal, "invalid throttle_pid payload: "+err.Error())
		}
		return commandEnvelope(in.ID, ctl.ThrottlePid(ctx, core.ThrottlePidCmd{Pid: req.Pid, Kbps: req.Kbps}))

	case typeThrottlePort:
		var req throttlePortRequest
		if err := json.Unmarshal(in.Payload, &req); err != nil {
			return errEnvelope(in.ID, core.KindInternal, "invalid throttle_port payload: "+err.Error())
		}
		return commandEnvelope(in.ID, ctl.ThrottlePort(ctx, core.ThrottlePortCmd{Port: req.Port, Kbps: req.Kbps, BurstKB: req.BurstKB}))

	case typeUnthrottlePid:
		var req pidRequest
		if err := json.Unmarshal(in.Payload, &req); err != nil {
			return errEnvelope(in.ID, core.KindInternal, "invalid unthrottle_pid payload: "+err.Error())
		}
		return commandEnvelope(in.ID, ctl.UnthrottlePid(ctx, core.UnthrottlePidCmd{Pid: req.Pid}))

	case typeUnthrottlePort:
		var req portRequest
		if err := json.Unmarshal(in.Payload, &req); err != nil {
			return errEnvelope(in.ID, core.KindInternal, "invalid unthrottle_port payload: "+err.Error())
		}
		return commandEnvelope(in.ID, ctl.UnthrottlePort(ctx, core.UnthrottlePortCmd{Port: req.Port}))

	default:
		return errEnvelope(in.ID, core.KindInternal, fmt.Sprintf("unknown command: %s", in.Type))
	}
}

func commandEnvelope(id string, err error) Envelope {
	if err == nil {
		return Envelope{ID: id, Type: typeOk}
	}
	if cmdErr, ok := err.(*core.CommandError); ok {
		return errEnvelope(id, cmdErr.Kind, cmdErr.Message)
	}
	return errEnvelope(id, core.KindInternal, err.Error())
}

func errEnvelope(id string, kind core.ErrKind, message string) Envelope {
	payload, _ := json.Marshal(errorPayload{Kind: string(kind), Message: message})
	return Envelope{ID: id, Type: typeErr, Payload: payload}
}

func parseView(v string) report.View {
	switch v {
	case "process":
		return report.Process
	case "port":
		return report.Port
	case "user":
		return report.User
	default:
		return report.Detailed
	}
}

func parseSort(s string) flowtable.SortType {
	switch s {
	case "most_bytes":
		return flowtable.SortMostBytes
	case "most_packets":
		return flowtable.SortMostPackets
	default:
		return flowtable.SortMostRecent
	}
}

func parseFilter(req snapshotRequest) flowtable.Filter {
	f := flowtable.Filter{}
	if req.HasPortFilter {
		f.HasPortRange = true
		f.PortLow = req.PortLow
		f.PortHigh = req.PortHigh
	}
	if req.Transport != "" {
		f.HasTransport = true
		f.Transport = flowtable.Transport(req.Transport)
	}
	return f
}
