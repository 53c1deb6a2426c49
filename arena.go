package main

// Terrain is the code stored in each arena grid cell
type Terrain uint8

const (
	TerrainVoid     Terrain = 0 // impassable, off-map
	TerrainOpen     Terrain = 1
	TerrainSlow     Terrain = 2
	TerrainCover    Terrain = 3 // partial cover / hiding
	TerrainObstacle Terrain = 4 // impassable
)

// TileSize is the render size of one grid cell
const TileSize = 32

// Cell is a grid coordinate
type Cell struct {
	Row int `json:"r" msgpack:"r"`
	Col int `json:"c" msgpack:"c"`
}

// Obstacle is a decorative marker placed on the arena
type Obstacle struct {
	Row  int    `msgpack:"r"`
	Col  int    `msgpack:"c"`
	Kind string `msgpack:"k"`
}

// Arena is the immutable battlefield of one match
type Arena struct {
	Width     int // render units
	Height    int // render units
	Rows      int
	Cols      int
	Terrain   [][]Terrain
	Heights   [][]int
	Obstacles []Obstacle
	Starts    [2]Cell
}

var arenaTerrain = []string{
	"0111111111111110",
	"1111111111111111",
	"1111111222111111",
	"1111111222113111",
	"1111141111113311",
	"1133144111111111",
	"1133111111221111",
	"1111112211221111",
	"1111221122111111",
	"1111221111113311",
	"1111111111441331",
	"1133111111141111",
	"1133111222111111",
	"1111111222111111",
	"1111111111111111",
	"0111111111111110",
}

var arenaHeights = []string{
	"0000000000000000",
	"0000000000000000",
	"0000001111000000",
	"0000001221000000",
	"0000021111000100",
	"0011022000000000",
	"0011000000110000",
	"0000001100110000",
	"0000110011000000",
	"0000110000000110",
	"0000000000220110",
	"0011000000020000",
	"0011001221000000",
	"0000001111000000",
	"0000000000000000",
	"0000000000000000",
}

// NewArena builds the arena from the fixed match template
func NewArena() *Arena {
	rows := len(arenaTerrain)
	cols := len(arenaTerrain[0])
	a := &Arena{
		Width:   cols * TileSize,
		Height:  rows * TileSize,
		Rows:    rows,
		Cols:    cols,
		Terrain: make([][]Terrain, rows),
		Heights: make([][]int, rows),
		Starts:  [2]Cell{{Row: 1, Col: 1}, {Row: rows - 2, Col: cols - 2}},
	}
	for r := 0; r < rows; r++ {
		a.Terrain[r] = make([]Terrain, cols)
		a.Heights[r] = make([]int, cols)
		for c := 0; c < cols; c++ {
			t := Terrain(arenaTerrain[r][c] - '0')
			a.Terrain[r][c] = t
			a.Heights[r][c] = int(arenaHeights[r][c] - '0')
			switch t {
			case TerrainObstacle:
				a.Obstacles = append(a.Obstacles, Obstacle{Row: r, Col: c, Kind: "rock"})
			case TerrainCover:
				a.Obstacles = append(a.Obstacles, Obstacle{Row: r, Col: c, Kind: "bush"})
			}
		}
	}
	return a
}

// InBounds reports whether the cell lies on the grid
func (a *Arena) InBounds(row, col int) bool {
	return row >= 0 && row < a.Rows && col >= 0 && col < a.Cols
}

// TerrainAt returns the terrain code, TerrainVoid off the grid
func (a *Arena) TerrainAt(row, col int) Terrain {
	if !a.InBounds(row, col) {
		return TerrainVoid
	}
	return a.Terrain[row][col]
}

// Walkable reports whether a unit may stand on the cell
func (a *Arena) Walkable(row, col int) bool {
	switch a.TerrainAt(row, col) {
	case TerrainOpen, TerrainSlow, TerrainCover:
		return true
	}
	return false
}
