package analyzer

import (
	"fmt"
	"io"
	"log"

	"github.com/google/pprof/profile"
)

// Sample value indexes of profiles built by ToProfile.
const (
	ProfileDurationIndex  = 0
	ProfileInstancesIndex = 1
)

type profileBuilder struct {
	p      *profile.Profile
	frames map[string]*profile.Location
}

func (b *profileBuilder) frame(name string) *profile.Location {
	if l, ok := b.frames[name]; ok {
		return l
	}
	fn := &profile.Function{ID: uint64(len(b.p.Function) + 1), Name: name, SystemName: name}
	b.p.Function = append(b.p.Function, fn)
	l := &profile.Location{ID: uint64(len(b.p.Location) + 1), Line: []profile.Line{{Function: fn}}}
	b.p.Location = append(b.p.Location, l)
	b.frames[name] = l
	return l
}

// ToProfile converts the duration records of res into a pprof profile so the
// standard pprof tooling can browse them. Every record becomes one sample with
// the stack analysis <- unit <- location <- device, valued in cycles.
func ToProfile(res *Result) *profile.Profile {
	b := &profileBuilder{
		p: &profile.Profile{
			SampleType: []*profile.ValueType{
				{Type: "duration", Unit: "cycles"},
				{Type: "instances", Unit: "count"},
			},
			PeriodType:        &profile.ValueType{Type: "duration", Unit: "cycles"},
			Period:            1,
			DefaultSampleType: "duration",
		},
		frames: map[string]*profile.Location{},
	}

	for _, dr := range res.Devices {
		deviceFrame := b.frame(fmt.Sprintf("device %d", dr.ID))
		views := append(append([]*LocationResult(nil), dr.Locations...), dr.Device)
		for _, lr := range views {
			if lr == nil {
				continue
			}
			locFrame := b.frame(lr.Location.String())
			for _, ur := range lr.Units {
				unitFrame := b.frame(ur.Unit)
				for _, spec := range res.Specs {
					ar, ok := ur.Analysis[spec.Name]
					if !ok {
						continue
					}
					leaf := b.frame(spec.Name)
					for _, rec := range ar.Records {
						b.p.Sample = append(b.p.Sample, &profile.Sample{
							Location: []*profile.Location{leaf, unitFrame, locFrame, deviceFrame},
							Value:    []int64{int64(rec.Value), 1},
							Label: map[string][]string{
								"analysis": {spec.Name},
								"unit":     {ur.Unit},
								"location": {lr.Location.String()},
							},
							NumLabel: map[string][]int64{
								"device": {int64(dr.ID)},
								"start":  {int64(rec.StartTS)},
							},
						})
					}
				}
			}
		}
	}
	return b.p
}

// WriteProfile writes res as a gzipped pprof protobuf.
func WriteProfile(w io.Writer, res *Result) error {
	p := ToProfile(res)
	if err := p.CheckValid(); err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}
	log.Printf("Writing pprof profile with %d samples", len(p.Sample))
	return p.Write(w)
}
