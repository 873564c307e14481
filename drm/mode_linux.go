package drm

import (
	"fmt"

	"github.com/NeowayLabs/drm/mode"

	"github.com/BeatGlow/kms"
)

// Resources lists the CRTCs and connectors of the card, with the modes each connector
// offers.
func (c *Card) Resources() (*kms.Resources, error) {
	res, err := mode.GetResources(c.f)
	if err != nil {
		return nil, fmt.Errorf("drm: %s: get resources: %w", c.name, err)
	}

	out := &kms.Resources{
		Crtcs: make([]kms.CrtcID, 0, len(res.Crtcs)),
	}
	for _, id := range res.Crtcs {
		out.Crtcs = append(out.Crtcs, kms.CrtcID(id))
	}
	for _, id := range res.Connectors {
		conn, err := mode.GetConnector(c.f, id)
		if err != nil {
			return nil, fmt.Errorf("drm: %s: get connector %d: %w", c.name, id, err)
		}
		out.Connectors = append(out.Connectors, connectorFromMode(conn))
	}
	return out, nil
}

func connectorFromMode(conn *mode.Connector) kms.Connector {
	kc := kms.Connector{
		ID:        kms.ConnectorID(conn.ID),
		Connected: conn.Connection == mode.Connected,
	}
	for _, info := range conn.Modes {
		// Connectors without modes report a single zeroed one.
		if info.Hdisplay == 0 || info.Vdisplay == 0 {
			continue
		}
		kc.Modes = append(kc.Modes, modeFromInfo(info))
	}
	return kc
}

func modeFromInfo(info mode.Info) kms.Mode {
	return kms.Mode{
		Clock:      info.Clock,
		Hdisplay:   info.Hdisplay,
		HsyncStart: info.HsyncStart,
		HsyncEnd:   info.HsyncEnd,
		Htotal:     info.Htotal,
		Hskew:      info.Hskew,
		Vdisplay:   info.Vdisplay,
		VsyncStart: info.VsyncStart,
		VsyncEnd:   info.VsyncEnd,
		Vtotal:     info.Vtotal,
		Vscan:      info.Vscan,
		Vrefresh:   info.Vrefresh,
		Flags:      info.Flags,
		Type:       info.Type,
		Name:       info.Name,
	}
}

func modeToInfo(m *kms.Mode) mode.Info {
	return mode.Info{
		Clock:      m.Clock,
		Hdisplay:   m.Hdisplay,
		HsyncStart: m.HsyncStart,
		HsyncEnd:   m.HsyncEnd,
		Htotal:     m.Htotal,
		Hskew:      m.Hskew,
		Vdisplay:   m.Vdisplay,
		VsyncStart: m.VsyncStart,
		VsyncEnd:   m.VsyncEnd,
		Vtotal:     m.Vtotal,
		Vscan:      m.Vscan,
		Vrefresh:   m.Vrefresh,
		Flags:      m.Flags,
		Type:       m.Type,
		Name:       m.Name,
	}
}
