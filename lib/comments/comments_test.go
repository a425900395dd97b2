package comments

import (
	"strings"
	"testing"

	"keiba-scraper/lib/race"

	"github.com/stretchr/testify/require"
)

func training(comments ...string) race.ByHorse[race.Training] {
	t := race.Training{}
	for _, c := range comments {
		t.Sessions = append(t.Sessions, race.TrainingSession{Comment: c})
	}
	return race.ByHorse[race.Training]{"1": t}
}

func TestDuplicateAcrossSourcesAppearsOnce(t *testing.T) {
	horses := []race.Horse{{Number: "1"}, {Number: "2"}}
	Aggregate(
		horses,
		race.ByHorse[string]{"1": "same comment"},
		nil,
		training("same comment"),
		nil,
		false,
	)
	require.Equal(t, 1, strings.Count(horses[0].IndividualComment, "same comment"))
	require.Equal(t, "same comment", horses[0].IndividualComment)
	require.Equal(t, "", horses[1].IndividualComment)
}

func TestOrderIsStable(t *testing.T) {
	horses := []race.Horse{{Number: "1"}}
	Aggregate(
		horses,
		race.ByHorse[string]{"1": "stable"},
		race.ByHorse[string]{"1": "previous"},
		training("first session", "second session", "stable"),
		race.ByHorse[[]string]{"1": {"point a", "point b"}, "2": {"other horse"}},
		false,
	)
	require.Equal(t, "stable previous first session second session point a point b", horses[0].IndividualComment)
}

func TestTagging(t *testing.T) {
	horses := []race.Horse{{Number: "1"}}
	Aggregate(
		horses,
		race.ByHorse[string]{"1": "s"},
		race.ByHorse[string]{"1": "p"},
		training("t"),
		race.ByHorse[[]string]{"1": {"x"}},
		true,
	)
	require.Equal(t, "[stable] s [previous] p [training] t [point] x", horses[0].IndividualComment)
}

func TestTaggedDuplicatesFromDifferentSourcesAreKept(t *testing.T) {
	horses := []race.Horse{{Number: "1"}}
	Aggregate(
		horses,
		race.ByHorse[string]{"1": "same comment"},
		nil,
		training("same comment", "same comment"),
		nil,
		true,
	)
	require.Equal(t, "[stable] same comment [training] same comment", horses[0].IndividualComment)
}

func TestSourcesOf(t *testing.T) {
	r := &race.Record{
		Horses: []race.Horse{{
			Number:          "3",
			StableComment:   "a",
			PreviousComment: "b",
			Training:        race.Training{Sessions: []race.TrainingSession{{Comment: "c"}}},
		}},
		PointInfo: &race.PointInfo{Points: []race.PointFragment{{HorseNumber: "3", Reason: "d"}}},
	}
	require.Equal(t, "a b c d", SourcesOf(r).Comment("3", false))
}
