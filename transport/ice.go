// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import "github.com/pion/webrtc/v4"

// ICEConfig holds the ICE servers used for WebRTC PeerConnections. An
// empty config gathers host candidates only, which is enough on one
// machine or LAN.
type ICEConfig struct {
	Servers []webrtc.ICEServer
}

// ICEConfigFromURLs builds an ICEConfig from STUN/TURN URLs. username
// and credential apply to every URL and are ignored by STUN servers.
func ICEConfigFromURLs(urls []string, username, credential string) ICEConfig {
	if len(urls) == 0 {
		return ICEConfig{}
	}
	return ICEConfig{
		Servers: []webrtc.ICEServer{{
			URLs:       urls,
			Username:   username,
			Credential: credential,
		}},
	}
}
