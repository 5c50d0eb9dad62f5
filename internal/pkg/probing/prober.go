//Package probing works out which telemetry groups a device has ever reported
//into. Reports have been linked to their device in three different ways over
//the years and none of them were migrated, so every convention is tried in turn.
package probing

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/apperrors"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/infrastructure/repositories/documents"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/models"
)

//Strategy is one linking convention between a report and its device
type Strategy struct {
	Name  string
	Field string
	//Value returns what Field holds for device, or false when the convention
	//cannot apply to it
	Value func(device models.Device) (interface{}, bool)
}

func byReference(device models.Device) (interface{}, bool) {
	return device.Ref, !device.Ref.IsZero()
}

func byIdentifier(device models.Device) (interface{}, bool) {
	return device.ID, device.ID != ""
}

//DefaultStrategies returns the conventions in the order they must be tried:
//the device reference, then the legacy box id, then the legacy box name
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: "reference", Field: "idDevice", Value: byReference},
		{Name: "box", Field: "idCaja", Value: byIdentifier},
		{Name: "box-name", Field: "Caja", Value: byIdentifier},
	}
}

//Group is a named set of report collections. A device belongs to the group
//if any of the collections holds a report for it.
type Group struct {
	Name        string
	Store       documents.Store
	Collections []string
}

const (
	GroupAtmospheric = "atmospheric"
	GroupFlow        = "flow"
	GroupQuality     = "quality"
	GroupMoisture    = "moisture"
)

//DefaultGroups binds the telemetry groups to the stores holding their reports
func DefaultGroups(management, telemetry documents.Store) []Group {
	return []Group{
		{Name: GroupAtmospheric, Store: management, Collections: []string{models.AtmosphericReportCollection}},
		{Name: GroupFlow, Store: management, Collections: []string{models.FlowFieldReportCollection, models.FlowLabReportCollection}},
		{Name: GroupQuality, Store: management, Collections: []string{models.QualityReportCollection}},
		{Name: GroupMoisture, Store: telemetry, Collections: []string{models.MoistureCollection, models.MoistureSCCollection}},
	}
}

//Recorder is told which strategy matched, if any
type Recorder interface {
	Probed(group, strategy string)
}

//Classification lists the groups a device belongs to, in group order
type Classification struct {
	Device models.Device `json:"device"`
	Groups []string      `json:"groups"`
}

//Prober checks devices against groups
type Prober struct {
	groups     []Group
	strategies []Strategy
	limit      int
	log        logging.Logger
	recorder   Recorder
}

//Option configures a Prober
type Option func(*Prober)

//WithStrategies replaces the default linking conventions
func WithStrategies(strategies ...Strategy) Option {
	return func(p *Prober) {
		p.strategies = strategies
	}
}

//WithConcurrency bounds the number of probes in flight. Zero or less means no bound.
func WithConcurrency(limit int) Option {
	return func(p *Prober) {
		p.limit = limit
	}
}

func WithRecorder(rec Recorder) Option {
	return func(p *Prober) {
		p.recorder = rec
	}
}

func NewProber(groups []Group, log logging.Logger, opts ...Option) *Prober {
	p := &Prober{
		groups:     groups,
		strategies: DefaultStrategies(),
		log:        log,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

//Group looks up a group by name
func (p *Prober) Group(name string) (Group, bool) {
	for _, g := range p.groups {
		if g.Name == name {
			return g, true
		}
	}
	return Group{}, false
}

//Probe reports whether collection in store holds any report for device. The
//strategies are tried in order and the first one with a match wins. Only
//existence is checked.
func (p *Prober) Probe(ctx context.Context, store documents.Store, collection string, device models.Device) (bool, string, error) {
	for _, s := range p.strategies {
		value, ok := s.Value(device)
		if !ok {
			continue
		}

		found, err := store.Any(ctx, collection, documents.Eq(s.Field, value))
		if err != nil {
			return false, "", fmt.Errorf("probe of %s by %s failed: %w", collection, s.Name, err)
		}

		if found {
			return true, s.Name, nil
		}
	}

	return false, "", nil
}

//InGroup ORs the probes of every collection in the group
func (p *Prober) InGroup(ctx context.Context, device models.Device, group Group) (bool, error) {
	for _, collection := range group.Collections {
		found, strategy, err := p.Probe(ctx, group.Store, collection, device)
		if err != nil {
			return false, err
		}

		if found {
			p.log.Debugf("device %s is in group %s (%s matched by %s)", device.ID, group.Name, collection, strategy)
			if p.recorder != nil {
				p.recorder.Probed(group.Name, strategy)
			}
			return true, nil
		}
	}

	if p.recorder != nil {
		p.recorder.Probed(group.Name, "none")
	}

	return false, nil
}

//Classify probes every device against every group concurrently. Results keep
//the order of devices, and no classification is returned unless every probe
//completed.
func (p *Prober) Classify(ctx context.Context, devices []models.Device) ([]Classification, error) {
	hits := make([][]bool, len(devices))
	for i := range hits {
		hits[i] = make([]bool, len(p.groups))
	}

	g, gctx := errgroup.WithContext(ctx)
	if p.limit > 0 {
		g.SetLimit(p.limit)
	}

	for i, device := range devices {
		for j, group := range p.groups {
			i, j, device, group := i, j, device, group
			g.Go(func() error {
				found, err := p.InGroup(gctx, device, group)
				if err != nil {
					return err
				}
				hits[i][j] = found
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		p.log.Errorf("classification failed: %s", err.Error())
		return nil, apperrors.NewStoreUnavailable("classify devices", err)
	}

	result := make([]Classification, 0, len(devices))
	for i, device := range devices {
		c := Classification{Device: device, Groups: []string{}}
		for j, group := range p.groups {
			if hits[i][j] {
				c.Groups = append(c.Groups, group.Name)
			}
		}
		result = append(result, c)
	}

	return result, nil
}

//Members returns the devices belonging to the named group
func (p *Prober) Members(ctx context.Context, devices []models.Device, name string) ([]models.Device, error) {
	group, ok := p.Group(name)
	if !ok {
		return nil, apperrors.NewNotFound(fmt.Sprintf("no telemetry group named %q", name))
	}

	single := *p
	single.groups = []Group{group}

	classified, err := single.Classify(ctx, devices)
	if err != nil {
		return nil, err
	}

	members := []models.Device{}
	for _, c := range classified {
		if len(c.Groups) > 0 {
			members = append(members, c.Device)
		}
	}

	return members, nil
}
