// Package targetinfo implements the self-describing record a Target hands
// an Initiator out-of-band so the Initiator can reach it (spec §4.7): an
// opaque fabric address, the Target's registered remote regions, and its
// endpoint identity. The wire format is JSON rather than a binary blob
// because the address bytes are provider-opaque and may contain anything;
// JSON's base64 string encoding is the one representation safe to carry
// over line-oriented media such as an NMOS SDP attribute or a config file.
package targetinfo

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/mxl-media/fabrics/internal/ferrors"
	"github.com/mxl-media/fabrics/internal/region"
)

var jsonAPI = jsoniter.Config{DisallowUnknownFields: true}.Froze()

// TargetInfo is a self-contained value: it can outlive the Target that
// created it, but is only meaningful to connect to while that Target is
// still listening.
type TargetInfo struct {
	FabricAddress []byte
	Regions       []region.RemoteRegion
	Identifier    uint64
}

type wireAddress struct {
	Addr []byte `json:"addr"`
}

type wireRegion struct {
	Addr uint64 `json:"addr"`
	Len  uint64 `json:"len"`
	RKey uint64 `json:"rkey"`
}

type wireTargetInfo struct {
	FabricAddress wireAddress  `json:"fabricAddress"`
	Regions       []wireRegion `json:"regions"`
	Identifier    uint64       `json:"identifier"`
}

// ToString serialises info as `{"fabricAddress":{"addr":"<base64>"},
// "regions":[{"addr":u64,"len":u64,"rkey":u64}…],"identifier":u64}`.
func ToString(info TargetInfo) (string, error) {
	w := wireTargetInfo{
		FabricAddress: wireAddress{Addr: info.FabricAddress},
		Regions:       make([]wireRegion, len(info.Regions)),
		Identifier:    info.Identifier,
	}
	for i, r := range info.Regions {
		w.Regions[i] = wireRegion{Addr: r.Addr, Len: r.Len, RKey: r.RKey}
	}

	b, err := jsonAPI.Marshal(w)
	if err != nil {
		return "", ferrors.Wrap(ferrors.StatusInvalidArg, "targetinfo.ToString", err)
	}
	return string(b), nil
}

// FromString parses text produced by ToString. Any field beyond the fixed
// schema — at any nesting level — fails InvalidArg rather than being
// silently dropped.
func FromString(text string) (TargetInfo, error) {
	var w wireTargetInfo
	if err := jsonAPI.Unmarshal([]byte(text), &w); err != nil {
		return TargetInfo{}, ferrors.Wrap(ferrors.StatusInvalidArg, "targetinfo.FromString", err)
	}

	info := TargetInfo{
		FabricAddress: w.FabricAddress.Addr,
		Regions:       make([]region.RemoteRegion, len(w.Regions)),
		Identifier:    w.Identifier,
	}
	for i, r := range w.Regions {
		info.Regions[i] = region.RemoteRegion{Addr: r.Addr, Len: r.Len, RKey: r.RKey}
	}
	return info, nil
}
