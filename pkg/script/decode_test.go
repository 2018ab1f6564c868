package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleBundle = `
entryScript: main
jsonGlobals:
  game:
    title: "The Hollow"
    bonus: 2
defsGlobals:
  - namespace: shared
    name: hp
    type: {kind: number}
    init: "10"
scripts:
  main:
    rootGroup: g0
    visibleJsonGlobals: [game]
    visibleDefsGlobals: [shared.hp]
    groups:
      g0:
        - {kind: text, id: t1, value: "Hi ${name}"}
        - kind: var
          id: v1
          name: name
          type: {kind: string}
          init: '"Elva"'
        - kind: choice
          id: c1
          prompt: "Pick one"
          options:
            - {id: o1, text: "North", group: g1, once: true}
            - {id: o2, text: "Rest", group: g2, fallOver: true}
        - {kind: call, id: k1, target: cave, args: [{name: depth, value: "2"}]}
      g1:
        - {kind: break, id: b1}
      g2:
        - {kind: continue, id: n1, target: choice}
  cave:
    rootGroup: r0
    params:
      - {name: depth, type: {kind: number}}
    groups:
      r0:
        - {kind: return, id: r1}
`

func TestDecodeProgram(t *testing.T) {
	program, err := DecodeProgram([]byte(sampleBundle))
	require.NoError(t, err)

	assert.Equal(t, "main", program.EntryScript)
	require.Contains(t, program.JSONGlobals, "game")
	game, ok := program.JSONGlobals["game"].AsMap()
	require.True(t, ok)
	assert.True(t, game["bonus"].Equal(Number(2)))

	require.Contains(t, program.DefsGlobals, "shared.hp")
	assert.Equal(t, []string{"shared.hp"}, program.DefsInitOrder)

	main := program.Script("main")
	require.NotNil(t, main)
	nodes := main.Group("g0").Nodes
	require.Len(t, nodes, 4)

	text, ok := nodes[0].(*TextNode)
	require.True(t, ok)
	assert.Equal(t, "Hi ${name}", text.Value)

	choice, ok := nodes[2].(*ChoiceNode)
	require.True(t, ok)
	require.Len(t, choice.Options, 2)
	assert.True(t, choice.Options[0].Once)
	assert.True(t, choice.Options[1].FallOver)

	cave := program.Script("cave")
	require.NotNil(t, cave)
	require.Len(t, cave.Params, 1)
	assert.Equal(t, TypeNumber, cave.Params[0].Type.Kind)
}

func TestDecodeProgramRejectsUnknownKind(t *testing.T) {
	_, err := DecodeProgram([]byte(`
entryScript: main
scripts:
  main:
    rootGroup: g0
    groups:
      g0:
        - {kind: teleport, id: x1}
`))
	require.Error(t, err)
	assert.Equal(t, CodeProgramInvalid, ErrorCode(err))
}

func TestDecodeProgramRejectsDanglingGroup(t *testing.T) {
	_, err := DecodeProgram([]byte(`
entryScript: main
scripts:
  main:
    rootGroup: g0
    groups:
      g0:
        - {kind: while, id: w1, when: "true", body: nowhere}
`))
	require.Error(t, err)
	assert.Equal(t, CodeProgramInvalid, ErrorCode(err))
}

func TestDecodeProgramRejectsUnknownField(t *testing.T) {
	_, err := DecodeProgram([]byte(`
entryScript: main
scripts:
  main:
    rootGroup: g0
    groups:
      g0:
        - {kind: text, id: t1, value: "hi", shout: true}
`))
	require.Error(t, err)
}
