package ensemble

import "fmt"

// DefaultAgents is the ensemble size when the caller does not choose one.
const DefaultAgents = 4

// DeepAgents is the fixed ensemble size of the deep topology.
const DeepAgents = 6

const (
	minAgents = 2
	maxAgents = 8
)

// Topology describes a pipeline shape explicitly: how many agents and which
// stages run in which order. The sequencer executes whatever the descriptor
// says and knows nothing else about shapes.
type Topology struct {
	Name   string  `json:"name"`
	Agents int     `json:"agents"`
	Stages []Stage `json:"stages"`
}

// Select returns the topology for an agent count and the deep flag. The deep
// flag wins over the agent count and forces a six-agent ensemble. Small
// ensembles (2-3 agents) get an extra elaboration pass to compensate for
// having fewer peers; agents outside 2-8 are rejected.
func Select(agents int, deep bool) (Topology, error) {
	if deep {
		return deepTopology(), nil
	}
	if agents == 0 {
		agents = DefaultAgents
	}
	if agents < minAgents || agents > maxAgents {
		return Topology{}, fmt.Errorf("ensemble: agent count %d out of range %d-%d", agents, minAgents, maxAgents)
	}
	if agents <= 3 {
		return elaborationTopology(agents), nil
	}
	return standardTopology(agents), nil
}

// Topologies returns every selectable shape, for display surfaces.
func Topologies() []Topology {
	return []Topology{
		standardTopology(DefaultAgents),
		elaborationTopology(3),
		deepTopology(),
	}
}

func standardTopology(agents int) Topology {
	return Topology{
		Name:   "standard",
		Agents: agents,
		Stages: []Stage{
			{Kind: StageInitial, Units: agents},
			{Kind: StageRefine, Units: agents},
			{Kind: StageSynthesize, Units: 1},
			{Kind: StageVerify, Units: 1},
		},
	}
}

func elaborationTopology(agents int) Topology {
	return Topology{
		Name:   "elaboration",
		Agents: agents,
		Stages: []Stage{
			{Kind: StageInitial, Units: agents},
			{Kind: StageElaborate, Units: agents},
			{Kind: StageRefine, Units: agents},
			{Kind: StageSynthesize, Units: 1},
			{Kind: StageVerify, Units: 1},
		},
	}
}

func deepTopology() Topology {
	return Topology{
		Name:   "deep",
		Agents: DeepAgents,
		Stages: []Stage{
			{Kind: StageInitial, Units: DeepAgents},
			{Kind: StageRefine, Units: DeepAgents},
			{Kind: StageCritique, Units: DeepAgents},
			{Kind: StageRevise, Units: DeepAgents},
			{Kind: StageParallelSynthesize, Units: 2},
			{Kind: StageFinalSynthesize, Units: 1},
			{Kind: StageReview, Units: 1},
			{Kind: StageVerify, Units: 1},
		},
	}
}
