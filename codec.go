package modcert

import (
	"bytes"
	"fmt"
	"sort"

	capnp "capnproto.org/go/capnp/v3"

	"github.com/iykyk-syn/modcert/certmsg"
)

// Every signed payload is a domain tag followed by the capnp canonical form of the signed
// struct (see certmsg/certmsg.capnp). Canonical form is independent of the order fields were
// set in and carries only integers, text and bytes, so independent actors encode identically.
const (
	msgDomain      = "modcert/msg/v1\x00"
	judgmentDomain = "modcert/judgment/v1\x00"
	deleteDomain   = "modcert/delete/v1\x00"
)

// SigningBytes returns the canonical encoding of the Msg the author signs.
func (m Msg) SigningBytes() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	_, seg, err := capnp.NewMessage(capnp.SingleSegment(nil))
	if err != nil {
		return nil, fmt.Errorf("creating a segment for capnp: %w", err)
	}
	cm, err := certmsg.NewRootMsg(seg)
	if err != nil {
		return nil, err
	}
	if err = writeMsg(cm, m); err != nil {
		return nil, err
	}
	return canonical(msgDomain, capnp.Struct(cm))
}

// JudgmentBytes returns the canonical encoding of (msg, status) a moderator signs.
func JudgmentBytes(m Msg, status Status) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	_, seg, err := capnp.NewMessage(capnp.SingleSegment(nil))
	if err != nil {
		return nil, fmt.Errorf("creating a segment for capnp: %w", err)
	}
	j, err := certmsg.NewRootJudgment(seg)
	if err != nil {
		return nil, err
	}
	cm, err := j.NewMsg()
	if err != nil {
		return nil, err
	}
	if err = writeMsg(cm, m); err != nil {
		return nil, err
	}
	j.SetStatus(uint8(status))
	return canonical(judgmentDomain, capnp.Struct(j))
}

// DeleteBytes returns the canonical encoding of the delete intent over the certificate:
// author key, message, judgments and author signature. Reason is never part of it.
func DeleteBytes(c MsgCert) ([]byte, error) {
	if err := c.Msg.Validate(); err != nil {
		return nil, err
	}
	_, seg, err := capnp.NewMessage(capnp.SingleSegment(nil))
	if err != nil {
		return nil, fmt.Errorf("creating a segment for capnp: %w", err)
	}
	root, err := certmsg.NewRootMsgCert(seg)
	if err != nil {
		return nil, err
	}
	if err = writeMsgCert(root, c, false); err != nil {
		return nil, err
	}
	return canonical(deleteDomain, capnp.Struct(root))
}

func canonical(domain string, s capnp.Struct) ([]byte, error) {
	b, err := capnp.Canonicalize(s)
	if err != nil {
		return nil, fmt.Errorf("canonicalizing: %w", err)
	}
	out := make([]byte, 0, len(domain)+len(b))
	out = append(out, domain...)
	return append(out, b...), nil
}

func (c MsgCert) MarshalBinary() ([]byte, error) {
	msg, seg, err := capnp.NewMessage(capnp.SingleSegment(nil))
	if err != nil {
		return nil, fmt.Errorf("creating a segment for capnp: %w", err)
	}
	root, err := certmsg.NewRootMsgCert(seg)
	if err != nil {
		return nil, err
	}
	if err = writeMsgCert(root, c, true); err != nil {
		return nil, err
	}
	return msg.Marshal()
}

func (c *MsgCert) UnmarshalBinary(data []byte) error {
	msg, err := capnp.Unmarshal(data)
	if err != nil {
		return err
	}
	root, err := certmsg.ReadRootMsgCert(msg)
	if err != nil {
		return fmt.Errorf("reading MsgCert: %w", err)
	}
	cert, err := readMsgCert(root)
	if err != nil {
		return err
	}
	*c = cert
	return nil
}

func (mc ModCert) MarshalBinary() ([]byte, error) {
	msg, seg, err := capnp.NewMessage(capnp.SingleSegment(nil))
	if err != nil {
		return nil, fmt.Errorf("creating a segment for capnp: %w", err)
	}
	root, err := certmsg.NewRootModCert(seg)
	if err != nil {
		return nil, err
	}
	if err = writeModCert(root, mc); err != nil {
		return nil, err
	}
	return msg.Marshal()
}

func (mc *ModCert) UnmarshalBinary(data []byte) error {
	msg, err := capnp.Unmarshal(data)
	if err != nil {
		return err
	}
	root, err := certmsg.ReadRootModCert(msg)
	if err != nil {
		return fmt.Errorf("reading ModCert: %w", err)
	}
	out, err := readModCert(root)
	if err != nil {
		return err
	}
	*mc = out
	return nil
}

func (d DeleteIntent) MarshalBinary() ([]byte, error) {
	msg, seg, err := capnp.NewMessage(capnp.SingleSegment(nil))
	if err != nil {
		return nil, fmt.Errorf("creating a segment for capnp: %w", err)
	}
	root, err := certmsg.NewRootDeleteIntent(seg)
	if err != nil {
		return nil, err
	}
	cert, err := root.NewCert()
	if err != nil {
		return nil, err
	}
	if err = writeMsgCert(cert, d.Cert, false); err != nil {
		return nil, err
	}
	if err = root.SetSign(d.Sign); err != nil {
		return nil, err
	}
	return msg.Marshal()
}

func (d *DeleteIntent) UnmarshalBinary(data []byte) error {
	msg, err := capnp.Unmarshal(data)
	if err != nil {
		return err
	}
	root, err := certmsg.ReadRootDeleteIntent(msg)
	if err != nil {
		return fmt.Errorf("reading DeleteIntent: %w", err)
	}
	cm, err := root.Cert()
	if err != nil {
		return err
	}
	cert, err := readMsgCert(cm)
	if err != nil {
		return err
	}
	sign, err := root.Sign()
	if err != nil {
		return err
	}
	d.Cert, d.Sign = cert, bytes.Clone(sign)
	return nil
}

func (r RetMsgCert) MarshalBinary() ([]byte, error) {
	msg, seg, err := capnp.NewMessage(capnp.SingleSegment(nil))
	if err != nil {
		return nil, fmt.Errorf("creating a segment for capnp: %w", err)
	}
	root, err := certmsg.NewRootStored(seg)
	if err != nil {
		return nil, err
	}
	cert, err := root.NewCert()
	if err != nil {
		return nil, err
	}
	if err = writeMsgCert(cert, r.MsgCert, true); err != nil {
		return nil, err
	}
	root.SetDeleted(uint8(r.Deleted))
	return msg.Marshal()
}

func (r *RetMsgCert) UnmarshalBinary(data []byte) error {
	msg, err := capnp.Unmarshal(data)
	if err != nil {
		return err
	}
	root, err := certmsg.ReadRootStored(msg)
	if err != nil {
		return fmt.Errorf("reading stored certificate: %w", err)
	}
	cm, err := root.Cert()
	if err != nil {
		return err
	}
	cert, err := readMsgCert(cm)
	if err != nil {
		return err
	}
	r.MsgCert, r.Deleted = cert, Deleted(root.Deleted())
	return nil
}

func (e ModLogEntry) MarshalBinary() ([]byte, error) {
	msg, seg, err := capnp.NewMessage(capnp.SingleSegment(nil))
	if err != nil {
		return nil, fmt.Errorf("creating a segment for capnp: %w", err)
	}
	root, err := certmsg.NewRootModLogEntry(seg)
	if err != nil {
		return nil, err
	}
	if err = root.SetPublicKey(e.PublicKey); err != nil {
		return nil, err
	}
	if err = root.SetContent(e.Content); err != nil {
		return nil, err
	}
	root.SetTimestamp(e.Timestamp)
	root.SetStatus(uint8(e.Status))
	return msg.Marshal()
}

func (e *ModLogEntry) UnmarshalBinary(data []byte) error {
	msg, err := capnp.Unmarshal(data)
	if err != nil {
		return err
	}
	root, err := certmsg.ReadRootModLogEntry(msg)
	if err != nil {
		return fmt.Errorf("reading ModLogEntry: %w", err)
	}
	pk, err := root.PublicKey()
	if err != nil {
		return err
	}
	content, err := root.Content()
	if err != nil {
		return err
	}
	e.PublicKey = bytes.Clone(pk)
	e.Content = content
	e.Timestamp = root.Timestamp()
	e.Status = Status(root.Status())
	return nil
}

func (c ModConfig) MarshalBinary() ([]byte, error) {
	msg, seg, err := capnp.NewMessage(capnp.SingleSegment(nil))
	if err != nil {
		return nil, fmt.Errorf("creating a segment for capnp: %w", err)
	}
	root, err := certmsg.NewRootModConfig(seg)
	if err != nil {
		return nil, err
	}
	words, err := root.NewForbidden(int32(len(c.Forbidden)))
	if err != nil {
		return nil, err
	}
	for i, w := range c.Forbidden {
		if err = words.Set(i, w); err != nil {
			return nil, err
		}
	}

	cats := make([]string, 0, len(c.Thresholds))
	for cat := range c.Thresholds {
		cats = append(cats, cat)
	}
	sort.Strings(cats)
	ths, err := root.NewThresholds(int32(len(cats)))
	if err != nil {
		return nil, err
	}
	for i, cat := range cats {
		th := ths.At(i)
		if err = th.SetCategory(cat); err != nil {
			return nil, err
		}
		th.SetValue(c.Thresholds[cat])
	}
	return msg.Marshal()
}

func (c *ModConfig) UnmarshalBinary(data []byte) error {
	msg, err := capnp.Unmarshal(data)
	if err != nil {
		return err
	}
	root, err := certmsg.ReadRootModConfig(msg)
	if err != nil {
		return fmt.Errorf("reading ModConfig: %w", err)
	}
	words, err := root.Forbidden()
	if err != nil {
		return err
	}
	forbidden := make([]string, words.Len())
	for i := range forbidden {
		if forbidden[i], err = words.At(i); err != nil {
			return err
		}
	}
	ths, err := root.Thresholds()
	if err != nil {
		return err
	}
	thresholds := make(map[string]float64, ths.Len())
	for i := 0; i < ths.Len(); i++ {
		th := ths.At(i)
		cat, err := th.Category()
		if err != nil {
			return err
		}
		thresholds[cat] = th.Value()
	}
	c.Forbidden, c.Thresholds = forbidden, thresholds
	return nil
}

func writeMsg(dst certmsg.Msg, m Msg) error {
	dst.SetTs(m.Ts)
	return dst.SetContent(m.Content)
}

func writeModCert(dst certmsg.ModCert, mc ModCert) error {
	if err := dst.SetSign(mc.Sign); err != nil {
		return err
	}
	if err := dst.SetPublicKey(mc.PublicKey); err != nil {
		return err
	}
	dst.SetStatus(uint8(mc.Status))
	return nil
}

func writeMsgCert(dst certmsg.MsgCert, c MsgCert, withReason bool) error {
	if err := dst.SetPublicKey(c.PublicKey); err != nil {
		return err
	}
	cm, err := dst.NewMsg()
	if err != nil {
		return err
	}
	if err = writeMsg(cm, c.Msg); err != nil {
		return err
	}
	list, err := dst.NewModCerts(int32(len(c.ModCerts)))
	if err != nil {
		return err
	}
	for i, mc := range c.ModCerts {
		if err = writeModCert(list.At(i), mc); err != nil {
			return err
		}
	}
	if err = dst.SetSign(c.Sign); err != nil {
		return err
	}
	if withReason && c.Reason != "" {
		return dst.SetReason(c.Reason)
	}
	return nil
}

func readModCert(src certmsg.ModCert) (ModCert, error) {
	sign, err := src.Sign()
	if err != nil {
		return ModCert{}, err
	}
	pk, err := src.PublicKey()
	if err != nil {
		return ModCert{}, err
	}
	return ModCert{
		Sign:      bytes.Clone(sign),
		PublicKey: bytes.Clone(pk),
		Status:    Status(src.Status()),
	}, nil
}

func readMsgCert(src certmsg.MsgCert) (MsgCert, error) {
	if !src.HasMsg() {
		return MsgCert{}, fmt.Errorf("%w: missing msg", ErrMalformed)
	}
	pk, err := src.PublicKey()
	if err != nil {
		return MsgCert{}, err
	}
	cm, err := src.Msg()
	if err != nil {
		return MsgCert{}, err
	}
	content, err := cm.Content()
	if err != nil {
		return MsgCert{}, err
	}
	list, err := src.ModCerts()
	if err != nil {
		return MsgCert{}, err
	}
	mcs := make([]ModCert, list.Len())
	for i := range mcs {
		if mcs[i], err = readModCert(list.At(i)); err != nil {
			return MsgCert{}, err
		}
	}
	sign, err := src.Sign()
	if err != nil {
		return MsgCert{}, err
	}
	reason, err := src.Reason()
	if err != nil {
		return MsgCert{}, err
	}
	return MsgCert{
		PublicKey: bytes.Clone(pk),
		Msg:       Msg{Content: content, Ts: cm.Ts()},
		ModCerts:  mcs,
		Sign:      bytes.Clone(sign),
		Reason:    reason,
	}, nil
}
