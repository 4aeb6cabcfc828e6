package certmsg

import (
	"math"

	capnp "capnproto.org/go/capnp/v3"
)

var (
	msgSize          = capnp.ObjectSize{DataSize: 8, PointerCount: 1}
	judgmentSize     = capnp.ObjectSize{DataSize: 8, PointerCount: 1}
	modCertSize      = capnp.ObjectSize{DataSize: 8, PointerCount: 2}
	msgCertSize      = capnp.ObjectSize{DataSize: 0, PointerCount: 5}
	deleteIntentSize = capnp.ObjectSize{DataSize: 0, PointerCount: 2}
	storedSize       = capnp.ObjectSize{DataSize: 8, PointerCount: 1}
	modLogEntrySize  = capnp.ObjectSize{DataSize: 16, PointerCount: 2}
	thresholdSize    = capnp.ObjectSize{DataSize: 8, PointerCount: 1}
	modConfigSize    = capnp.ObjectSize{DataSize: 0, PointerCount: 2}
)

type Msg capnp.Struct

func NewMsg(s *capnp.Segment) (Msg, error) {
	st, err := capnp.NewStruct(s, msgSize)
	return Msg(st), err
}

func NewRootMsg(s *capnp.Segment) (Msg, error) {
	st, err := capnp.NewRootStruct(s, msgSize)
	return Msg(st), err
}

func ReadRootMsg(msg *capnp.Message) (Msg, error) {
	root, err := msg.Root()
	return Msg(root.Struct()), err
}

func (s Msg) Ts() int64 {
	return int64(capnp.Struct(s).Uint64(0))
}

func (s Msg) SetTs(v int64) {
	capnp.Struct(s).SetUint64(0, uint64(v))
}

func (s Msg) Content() (string, error) {
	p, err := capnp.Struct(s).Ptr(0)
	return p.Text(), err
}

func (s Msg) SetContent(v string) error {
	return capnp.Struct(s).SetText(0, v)
}

type Judgment capnp.Struct

func NewRootJudgment(s *capnp.Segment) (Judgment, error) {
	st, err := capnp.NewRootStruct(s, judgmentSize)
	return Judgment(st), err
}

func (s Judgment) Msg() (Msg, error) {
	p, err := capnp.Struct(s).Ptr(0)
	return Msg(p.Struct()), err
}

func (s Judgment) NewMsg() (Msg, error) {
	ss, err := NewMsg(capnp.Struct(s).Segment())
	if err != nil {
		return Msg{}, err
	}
	err = capnp.Struct(s).SetPtr(0, capnp.Struct(ss).ToPtr())
	return ss, err
}

func (s Judgment) Status() uint8 {
	return capnp.Struct(s).Uint8(0)
}

func (s Judgment) SetStatus(v uint8) {
	capnp.Struct(s).SetUint8(0, v)
}

type ModCert capnp.Struct

type ModCert_List = capnp.StructList[ModCert]

func NewModCert_List(s *capnp.Segment, sz int32) (ModCert_List, error) {
	l, err := capnp.NewCompositeList(s, modCertSize, sz)
	return capnp.StructList[ModCert](l), err
}

func NewRootModCert(s *capnp.Segment) (ModCert, error) {
	st, err := capnp.NewRootStruct(s, modCertSize)
	return ModCert(st), err
}

func ReadRootModCert(msg *capnp.Message) (ModCert, error) {
	root, err := msg.Root()
	return ModCert(root.Struct()), err
}

func (s ModCert) Sign() ([]byte, error) {
	p, err := capnp.Struct(s).Ptr(0)
	return p.Data(), err
}

func (s ModCert) SetSign(v []byte) error {
	return capnp.Struct(s).SetData(0, v)
}

func (s ModCert) PublicKey() ([]byte, error) {
	p, err := capnp.Struct(s).Ptr(1)
	return p.Data(), err
}

func (s ModCert) SetPublicKey(v []byte) error {
	return capnp.Struct(s).SetData(1, v)
}

func (s ModCert) Status() uint8 {
	return capnp.Struct(s).Uint8(0)
}

func (s ModCert) SetStatus(v uint8) {
	capnp.Struct(s).SetUint8(0, v)
}

type MsgCert capnp.Struct

func NewMsgCert(s *capnp.Segment) (MsgCert, error) {
	st, err := capnp.NewStruct(s, msgCertSize)
	return MsgCert(st), err
}

func NewRootMsgCert(s *capnp.Segment) (MsgCert, error) {
	st, err := capnp.NewRootStruct(s, msgCertSize)
	return MsgCert(st), err
}

func ReadRootMsgCert(msg *capnp.Message) (MsgCert, error) {
	root, err := msg.Root()
	return MsgCert(root.Struct()), err
}

func (s MsgCert) PublicKey() ([]byte, error) {
	p, err := capnp.Struct(s).Ptr(0)
	return p.Data(), err
}

func (s MsgCert) SetPublicKey(v []byte) error {
	return capnp.Struct(s).SetData(0, v)
}

func (s MsgCert) HasMsg() bool {
	return capnp.Struct(s).HasPtr(1)
}

func (s MsgCert) Msg() (Msg, error) {
	p, err := capnp.Struct(s).Ptr(1)
	return Msg(p.Struct()), err
}

func (s MsgCert) NewMsg() (Msg, error) {
	ss, err := NewMsg(capnp.Struct(s).Segment())
	if err != nil {
		return Msg{}, err
	}
	err = capnp.Struct(s).SetPtr(1, capnp.Struct(ss).ToPtr())
	return ss, err
}

func (s MsgCert) ModCerts() (ModCert_List, error) {
	p, err := capnp.Struct(s).Ptr(2)
	return ModCert_List(p.List()), err
}

func (s MsgCert) NewModCerts(n int32) (ModCert_List, error) {
	l, err := NewModCert_List(capnp.Struct(s).Segment(), n)
	if err != nil {
		return ModCert_List{}, err
	}
	err = capnp.Struct(s).SetPtr(2, l.ToPtr())
	return l, err
}

func (s MsgCert) Sign() ([]byte, error) {
	p, err := capnp.Struct(s).Ptr(3)
	return p.Data(), err
}

func (s MsgCert) SetSign(v []byte) error {
	return capnp.Struct(s).SetData(3, v)
}

func (s MsgCert) Reason() (string, error) {
	p, err := capnp.Struct(s).Ptr(4)
	return p.Text(), err
}

func (s MsgCert) HasReason() bool {
	return capnp.Struct(s).HasPtr(4)
}

func (s MsgCert) SetReason(v string) error {
	return capnp.Struct(s).SetText(4, v)
}

type DeleteIntent capnp.Struct

func NewRootDeleteIntent(s *capnp.Segment) (DeleteIntent, error) {
	st, err := capnp.NewRootStruct(s, deleteIntentSize)
	return DeleteIntent(st), err
}

func ReadRootDeleteIntent(msg *capnp.Message) (DeleteIntent, error) {
	root, err := msg.Root()
	return DeleteIntent(root.Struct()), err
}

func (s DeleteIntent) Cert() (MsgCert, error) {
	p, err := capnp.Struct(s).Ptr(0)
	return MsgCert(p.Struct()), err
}

func (s DeleteIntent) NewCert() (MsgCert, error) {
	ss, err := NewMsgCert(capnp.Struct(s).Segment())
	if err != nil {
		return MsgCert{}, err
	}
	err = capnp.Struct(s).SetPtr(0, capnp.Struct(ss).ToPtr())
	return ss, err
}

func (s DeleteIntent) Sign() ([]byte, error) {
	p, err := capnp.Struct(s).Ptr(1)
	return p.Data(), err
}

func (s DeleteIntent) SetSign(v []byte) error {
	return capnp.Struct(s).SetData(1, v)
}

type Stored capnp.Struct

func NewRootStored(s *capnp.Segment) (Stored, error) {
	st, err := capnp.NewRootStruct(s, storedSize)
	return Stored(st), err
}

func ReadRootStored(msg *capnp.Message) (Stored, error) {
	root, err := msg.Root()
	return Stored(root.Struct()), err
}

func (s Stored) Cert() (MsgCert, error) {
	p, err := capnp.Struct(s).Ptr(0)
	return MsgCert(p.Struct()), err
}

func (s Stored) NewCert() (MsgCert, error) {
	ss, err := NewMsgCert(capnp.Struct(s).Segment())
	if err != nil {
		return MsgCert{}, err
	}
	err = capnp.Struct(s).SetPtr(0, capnp.Struct(ss).ToPtr())
	return ss, err
}

func (s Stored) Deleted() uint8 {
	return capnp.Struct(s).Uint8(0)
}

func (s Stored) SetDeleted(v uint8) {
	capnp.Struct(s).SetUint8(0, v)
}

type ModLogEntry capnp.Struct

func NewRootModLogEntry(s *capnp.Segment) (ModLogEntry, error) {
	st, err := capnp.NewRootStruct(s, modLogEntrySize)
	return ModLogEntry(st), err
}

func ReadRootModLogEntry(msg *capnp.Message) (ModLogEntry, error) {
	root, err := msg.Root()
	return ModLogEntry(root.Struct()), err
}

func (s ModLogEntry) PublicKey() ([]byte, error) {
	p, err := capnp.Struct(s).Ptr(0)
	return p.Data(), err
}

func (s ModLogEntry) SetPublicKey(v []byte) error {
	return capnp.Struct(s).SetData(0, v)
}

func (s ModLogEntry) Content() (string, error) {
	p, err := capnp.Struct(s).Ptr(1)
	return p.Text(), err
}

func (s ModLogEntry) SetContent(v string) error {
	return capnp.Struct(s).SetText(1, v)
}

func (s ModLogEntry) Timestamp() int64 {
	return int64(capnp.Struct(s).Uint64(0))
}

func (s ModLogEntry) SetTimestamp(v int64) {
	capnp.Struct(s).SetUint64(0, uint64(v))
}

func (s ModLogEntry) Status() uint8 {
	return capnp.Struct(s).Uint8(8)
}

func (s ModLogEntry) SetStatus(v uint8) {
	capnp.Struct(s).SetUint8(8, v)
}

type Threshold capnp.Struct

type Threshold_List = capnp.StructList[Threshold]

func NewThreshold_List(s *capnp.Segment, sz int32) (Threshold_List, error) {
	l, err := capnp.NewCompositeList(s, thresholdSize, sz)
	return capnp.StructList[Threshold](l), err
}

func (s Threshold) Category() (string, error) {
	p, err := capnp.Struct(s).Ptr(0)
	return p.Text(), err
}

func (s Threshold) SetCategory(v string) error {
	return capnp.Struct(s).SetText(0, v)
}

func (s Threshold) Value() float64 {
	return math.Float64frombits(capnp.Struct(s).Uint64(0))
}

func (s Threshold) SetValue(v float64) {
	capnp.Struct(s).SetUint64(0, math.Float64bits(v))
}

type ModConfig capnp.Struct

func NewRootModConfig(s *capnp.Segment) (ModConfig, error) {
	st, err := capnp.NewRootStruct(s, modConfigSize)
	return ModConfig(st), err
}

func ReadRootModConfig(msg *capnp.Message) (ModConfig, error) {
	root, err := msg.Root()
	return ModConfig(root.Struct()), err
}

func (s ModConfig) Forbidden() (capnp.TextList, error) {
	p, err := capnp.Struct(s).Ptr(0)
	return capnp.TextList(p.List()), err
}

func (s ModConfig) NewForbidden(n int32) (capnp.TextList, error) {
	l, err := capnp.NewTextList(capnp.Struct(s).Segment(), n)
	if err != nil {
		return capnp.TextList{}, err
	}
	err = capnp.Struct(s).SetPtr(0, l.ToPtr())
	return l, err
}

func (s ModConfig) Thresholds() (Threshold_List, error) {
	p, err := capnp.Struct(s).Ptr(1)
	return Threshold_List(p.List()), err
}

func (s ModConfig) NewThresholds(n int32) (Threshold_List, error) {
	l, err := NewThreshold_List(capnp.Struct(s).Segment(), n)
	if err != nil {
		return Threshold_List{}, err
	}
	err = capnp.Struct(s).SetPtr(1, l.ToPtr())
	return l, err
}
