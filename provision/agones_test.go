package provision

import (
	"context"
	"testing"

	agonesv1 "agones.dev/agones/pkg/apis/agones/v1"
	agonesfake "agones.dev/agones/pkg/client/clientset/versioned/fake"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
)

func gameServer(name, ns, allocationID string) *agonesv1.GameServer {
	return &agonesv1.GameServer{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: ns,
			Labels:    map[string]string{allocationIDLabel: allocationID},
		},
	}
}

func TestAgonesProvisioner_DeleteAllocation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name         string
		objects      []*agonesv1.GameServer
		namespace    string
		allocationID string
		wantErr      bool
		wantLeft     int
	}{
		{
			name:         "deletes labelled game server",
			objects:      []*agonesv1.GameServer{gameServer("gs-1", "default", "m1"), gameServer("gs-2", "default", "m2")},
			allocationID: "m1",
			wantErr:      false,
			wantLeft:     1,
		},
		{
			name:         "no game server for allocation",
			objects:      []*agonesv1.GameServer{gameServer("gs-1", "default", "m1")},
			allocationID: "missing",
			wantErr:      true,
			wantLeft:     1,
		},
		{
			name:         "custom namespace",
			objects:      []*agonesv1.GameServer{gameServer("gs-1", "games", "m1")},
			namespace:    "games",
			allocationID: "m1",
			wantErr:      false,
			wantLeft:     0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var objs []runtime.Object
			for _, gs := range tt.objects {
				objs = append(objs, gs)
			}
			cli := agonesfake.NewSimpleClientset(objs...)
			ns := tt.namespace
			if ns == "" {
				ns = "default"
			}
			p := &AgonesProvisioner{targetNamespace: tt.namespace, agones: cli}

			err := p.DeleteAllocation(ctx, tt.allocationID)
			gotErr := (err != nil)
			if gotErr != tt.wantErr {
				t.Fatalf("DeleteAllocation() error mismatch\ngotErr: %#v\nwantErr: %#v\nerr: %#v", gotErr, tt.wantErr, err)
			}

			list, err := cli.AgonesV1().GameServers(ns).List(ctx, metav1.ListOptions{})
			if err != nil {
				t.Fatalf("list: %#v", err)
			}
			if len(list.Items) != tt.wantLeft {
				t.Errorf("game servers left = %d, want %d", len(list.Items), tt.wantLeft)
			}
		})
	}
}
