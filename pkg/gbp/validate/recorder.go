package validate

import (
	"fmt"
	"sort"

	"github.com/stackforge/group-based-policy/pkg/gbp/fabric"
	"github.com/stackforge/group-based-policy/pkg/util"
)

// recorder is a fabric.Client that only accumulates writes. Replaying
// the synchronizer against it yields the expected object set without
// touching a real backend.
type recorder struct {
	objects map[string]fabric.Object
}

func newRecorder() *recorder {
	return &recorder{objects: make(map[string]fabric.Object)}
}

func (r *recorder) Get(dn string) (fabric.Object, error) {
	o, ok := r.objects[dn]
	if !ok {
		return nil, fmt.Errorf("fabric object '%s': %w", dn, util.ErrNotFound)
	}
	return o, nil
}

func (r *recorder) List() ([]fabric.Object, error) {
	return r.Objects(), nil
}

func (r *recorder) Create(o fabric.Object) error {
	r.objects[fabric.DN(o)] = o
	return nil
}

func (r *recorder) Update(o fabric.Object) error {
	r.objects[fabric.DN(o)] = o
	return nil
}

func (r *recorder) Delete(dn string) error {
	delete(r.objects, dn)
	return nil
}

func (r *recorder) Status(string) (string, error) {
	return fabric.StatusSynced, nil
}

// Objects returns the recorded set, sorted by DN.
func (r *recorder) Objects() []fabric.Object {
	dns := make([]string, 0, len(r.objects))
	for dn := range r.objects {
		dns = append(dns, dn)
	}
	sort.Strings(dns)
	out := make([]fabric.Object, len(dns))
	for i, dn := range dns {
		out[i] = r.objects[dn]
	}
	return out
}
