package handler

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
)

// TileVars are the raw path segments of a tile request, as matched by the
// route pattern. Y carries the optional scale suffix and the format. Patterns
// may leave out z and x, which then parse as 0.
type TileVars struct {
	Z, X, Y string
}

type MissingVarError struct {
	Name string
}

func (mve *MissingVarError) Error() string {
	return fmt.Sprintf("Missing path variable: %s", mve.Name)
}

func ParseTileVars(req *http.Request) (TileVars, error) {
	m := mux.Vars(req)
	vars := TileVars{Z: m["z"], X: m["x"], Y: m["y"]}
	if vars.Y == "" {
		return vars, &MissingVarError{Name: "y"}
	}
	return vars, nil
}
