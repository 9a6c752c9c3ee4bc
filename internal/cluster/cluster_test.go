package cluster

import (
	"reflect"
	"testing"

	"scout/internal/core"
)

func doc(id, title, content string) core.Document {
	return core.Document{ID: id, Title: title, Content: content}
}

func batteryDocs() []core.Document {
	return []core.Document{
		doc("d1", "Battery storage prices fall sharply", "Grid scale battery storage costs dropped again as cell prices fall."),
		doc("d2", "Grid battery storage hits record low prices", "Battery storage prices for grid projects reached a record low."),
		doc("d3", "Cheap battery storage reshapes the grid", "Falling battery storage prices change grid planning."),
		doc("d4", "Heat pump subsidies extended in Germany", "The federal heat pump subsidy program was extended for two years."),
		doc("d5", "Germany extends heat pump subsidy program", "Heat pump subsidies in Germany will continue with higher caps."),
		doc("d6", "Heat pump subsidy program gets new funding", "New funding keeps the heat pump subsidy program alive in Germany."),
		doc("d7", "Local bakery wins award", "A bakery in town won a regional pastry award."),
	}
}

func TestClusterGroupsSimilarDocuments(t *testing.T) {
	clusters := New().Cluster(batteryDocs(), nil)

	if len(clusters) != 2 {
		t.Fatalf("expected 2 clusters, got %d: %+v", len(clusters), clusters)
	}
	for _, cl := range clusters {
		if len(cl.DocumentIDs) != 3 {
			t.Errorf("cluster %s has %d members, want 3", cl.ClusterID, len(cl.DocumentIDs))
		}
		if cl.RepresentativeTitle == "" {
			t.Errorf("cluster %s missing representative title", cl.ClusterID)
		}
		if cl.Label == "" {
			t.Errorf("cluster %s missing label", cl.ClusterID)
		}
	}
}

func TestClusterDropsUnmatchedNoise(t *testing.T) {
	clusters := New().Cluster(batteryDocs(), nil)
	for _, cl := range clusters {
		for _, id := range cl.DocumentIDs {
			if id == "d7" {
				t.Error("noise document clustered without seed match")
			}
		}
	}
}

func TestClusterPromotesSeedMatchedNoise(t *testing.T) {
	clusters := New().Cluster(batteryDocs(), []string{"bakery"})

	var singleton *core.TopicCluster
	for i := range clusters {
		if len(clusters[i].DocumentIDs) == 1 {
			singleton = &clusters[i]
		}
	}
	if singleton == nil {
		t.Fatal("seed-matched noise not promoted to singleton")
	}
	if singleton.DocumentIDs[0] != "d7" {
		t.Errorf("wrong singleton member: %v", singleton.DocumentIDs)
	}
}

func TestClusterDeterministic(t *testing.T) {
	docs := batteryDocs()
	a := New().Cluster(docs, []string{"bakery"})
	b := New().Cluster(docs, []string{"bakery"})

	if len(a) != len(b) {
		t.Fatalf("cluster counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if !reflect.DeepEqual(a[i].DocumentIDs, b[i].DocumentIDs) {
			t.Errorf("cluster %d membership differs: %v vs %v", i, a[i].DocumentIDs, b[i].DocumentIDs)
		}
		if a[i].Label != b[i].Label {
			t.Errorf("cluster %d label differs: %q vs %q", i, a[i].Label, b[i].Label)
		}
	}
}

func TestClusterEmptyInput(t *testing.T) {
	if clusters := New().Cluster(nil, nil); clusters != nil {
		t.Errorf("expected nil for empty input, got %v", clusters)
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := vector{"battery": 1.0, "storage": 1.0}
	b := vector{"battery": 1.0, "storage": 1.0}
	c := vector{"bakery": 1.0}

	if sim := cosineSimilarity(a, b); sim < 0.999 {
		t.Errorf("identical vectors similarity = %v, want ~1", sim)
	}
	if sim := cosineSimilarity(a, c); sim != 0 {
		t.Errorf("disjoint vectors similarity = %v, want 0", sim)
	}
	if sim := cosineSimilarity(a, vector{}); sim != 0 {
		t.Errorf("zero vector similarity = %v, want 0", sim)
	}
}

func TestTokenizeDropsStopwordsAndShortTokens(t *testing.T) {
	tokens := tokenize("The battery and the grid, a 5x win")
	want := []string{"battery", "grid", "5x", "win"}
	if !reflect.DeepEqual(tokens, want) {
		t.Errorf("tokenize = %v, want %v", tokens, want)
	}
}

func TestTopTokensDeterministicTieBreak(t *testing.T) {
	v := vector{"zebra": 1.0, "apple": 1.0, "mango": 1.0}
	got := topTokens(v, 2)
	want := []string{"apple", "mango"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("topTokens = %v, want %v", got, want)
	}
}
